package env

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Precedence(t *testing.T) {
	defaults := map[string]string{
		"A": "default",
		"B": "default",
		"C": "default",
	}
	declared := map[string]string{
		"B": "declared",
		"C": "declared",
	}
	secretValues := map[string]string{
		"C": "secret",
	}

	resolved, err := Resolve(defaults, declared, secretValues, nil)
	require.NoError(t, err)

	assert.Equal(t, "default", resolved["A"], "defaults used only when absent elsewhere")
	assert.Equal(t, "declared", resolved["B"], "declared overrides defaults")
	assert.Equal(t, "secret", resolved["C"], "secret store wins over both")
}

func TestResolve_Idempotent(t *testing.T) {
	defaults := map[string]string{"A": "1", "B": "${A}"}
	declared := map[string]string{"B": "x-${A}"}
	secretValues := map[string]string{"TOKEN": "s3cr3t"}

	first, err := Resolve(defaults, declared, secretValues, []string{"TOKEN"})
	require.NoError(t, err)

	second, err := Resolve(defaults, declared, secretValues, []string{"TOKEN"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolve_MissingSecret(t *testing.T) {
	_, err := Resolve(nil, map[string]string{"X": "1"}, nil, []string{"UPLOAD_TOKEN", "API_KEY"})
	require.Error(t, err)

	var missing *MissingSecretError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"API_KEY", "UPLOAD_TOKEN"}, missing.Names)
}

func TestResolve_SecretPresent(t *testing.T) {
	resolved, err := Resolve(nil, nil, map[string]string{"UPLOAD_TOKEN": "t"}, []string{"UPLOAD_TOKEN"})
	require.NoError(t, err)
	assert.Equal(t, "t", resolved["UPLOAD_TOKEN"])
}

func TestResolve_RejectsBuiltinPrefix(t *testing.T) {
	_, err := Resolve(nil, map[string]string{"KILN_RUN_ID": "forged"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KILN_")
}

func TestResolve_Expansion(t *testing.T) {
	defaults := map[string]string{"HOME_DIR": "/home/ci"}
	declared := map[string]string{
		"CACHE": "${HOME_DIR}/cache",
		"BOTH":  "${HOME_DIR}:${CACHE}",
	}

	resolved, err := Resolve(defaults, declared, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "/home/ci/cache", resolved["CACHE"])
	// Single-pass expansion: CACHE's own reference is substituted with
	// its pre-expansion value.
	assert.Equal(t, "/home/ci:${HOME_DIR}/cache", resolved["BOTH"])
}

func TestResolve_UndefinedVariable(t *testing.T) {
	_, err := Resolve(nil, map[string]string{"X": "${NOPE}"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOPE")
}
