package prefs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Empty(t, s.Engine())

	require.NoError(t, s.SetEngine("brave"))
	assert.Equal(t, "brave", s.Engine())

	// A fresh store sees the persisted value.
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, "brave", reopened.Engine())
}

func TestFileStoreMissingFile(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Empty(t, s.Engine())
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	assert.Empty(t, m.Engine())
	require.NoError(t, m.SetEngine("google"))
	assert.Equal(t, "google", m.Engine())
}
