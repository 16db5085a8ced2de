package apiclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSessionPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".stackctl", "session.json")

	s, err := NewFileSession(path)
	require.NoError(t, err)
	assert.Empty(t, s.Token())

	require.NoError(t, s.SetToken("abc"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewFileSession(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", reopened.Token())

	require.NoError(t, reopened.Clear())
	assert.Empty(t, reopened.Token())
	assert.NoFileExists(t, path)

	// Clearing twice is fine.
	require.NoError(t, reopened.Clear())
}

func TestFileSessionCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileSession(path)
	assert.Error(t, err)
}

func TestMemorySession(t *testing.T) {
	s := NewMemorySession("t1")
	assert.Equal(t, "t1", s.Token())
	require.NoError(t, s.SetToken("t2"))
	assert.Equal(t, "t2", s.Token())
	require.NoError(t, s.Clear())
	assert.Empty(t, s.Token())
}
