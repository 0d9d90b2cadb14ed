package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("UPLOAD_TOKEN: abc\nAPI_KEY: xyz\n"), 0o600))

	store, err := FromFile(path)
	require.NoError(t, err)

	values := store.All()
	assert.Equal(t, "abc", values["UPLOAD_TOKEN"])
	assert.Equal(t, "xyz", values["API_KEY"])
}

func TestFromFile_Missing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestFromFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a\n- mapping\n"), 0o600))

	_, err := FromFile(path)
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("KILN_TEST_SECRET", "present")

	store := FromEnv([]string{"KILN_TEST_SECRET", "KILN_TEST_ABSENT"})
	values := store.All()

	assert.Equal(t, "present", values["KILN_TEST_SECRET"])
	_, ok := values["KILN_TEST_ABSENT"]
	assert.False(t, ok, "absent variables are not present in the store")
}

func TestStatic_CopiesInput(t *testing.T) {
	source := map[string]string{"A": "1"}
	store := Static(source)

	source["A"] = "mutated"
	assert.Equal(t, "1", store.All()["A"])

	// All() hands out a copy too.
	store.All()["A"] = "mutated"
	assert.Equal(t, "1", store.All()["A"])
}
