package remote

import (
	"testing"

	"github.com/kilnci/kiln/kiln/schema"
	"github.com/stretchr/testify/assert"
)

func TestBuildCommand_Plain(t *testing.T) {
	cmd := buildCommand(schema.Step{Run: "make test"}, nil)
	assert.Equal(t, "make test", cmd)
}

func TestBuildCommand_WithEnv(t *testing.T) {
	cmd := buildCommand(schema.Step{Run: "make test"}, []string{"CI=1", "NAME=kiln"})
	assert.Equal(t, "export CI='1'; export NAME='kiln'; make test", cmd)
}

func TestBuildCommand_WithDir(t *testing.T) {
	cmd := buildCommand(schema.Step{Run: "make test", Dir: "/srv/build"}, nil)
	assert.Equal(t, "cd '/srv/build' && make test", cmd)
}

func TestBuildCommand_QuotesValues(t *testing.T) {
	cmd := buildCommand(schema.Step{Run: "deploy"}, []string{`MSG=it's done; rm -rf /`})
	assert.Equal(t, `export MSG='it'\''s done; rm -rf /'; deploy`, cmd)
}

func TestBuildCommand_SkipsMalformedEntries(t *testing.T) {
	cmd := buildCommand(schema.Step{Run: "true"}, []string{"NOEQUALS"})
	assert.Equal(t, "true", cmd)
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "abc", expected: "'abc'"},
		{name: "spaces", input: "a b", expected: "'a b'"},
		{name: "single quote", input: "a'b", expected: `'a'\''b'`},
		{name: "empty", input: "", expected: "''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shellQuote(tt.input))
		})
	}
}
