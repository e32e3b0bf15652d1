package home

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-distill")
		require.NoError(t, err)
		require.Equal(t, "/tmp/test-distill", dir.Path())
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		require.NoError(t, err)

		h, _ := os.UserHomeDir()
		require.Equal(t, filepath.Join(h, DefaultDirName), dir.Path())
	})
}

func TestDir_Paths(t *testing.T) {
	dir, err := New("/tmp/test-distill")
	require.NoError(t, err)

	require.Equal(t, "/tmp/test-distill/defradb", dir.DefraDataPath())
	require.Equal(t, "/tmp/test-distill/config.yaml", dir.ConfigPath())
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	distillDir := filepath.Join(tmpDir, "distill-test")

	dir, err := New(distillDir)
	require.NoError(t, err)
	require.False(t, dir.Exists())

	require.NoError(t, dir.EnsureExists())
	require.True(t, dir.Exists())

	_, statErr := os.Stat(dir.DefraDataPath())
	require.NoError(t, statErr)
}

func TestDir_ConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	dir, err := New(tmpDir)
	require.NoError(t, err)
	require.False(t, dir.ConfigExists())

	require.NoError(t, os.WriteFile(dir.ConfigPath(), []byte("store:\n  url: \"\"\n"), 0644))
	require.True(t, dir.ConfigExists())
}
