package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "data.sqlite")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir), "directories are not files")
	assert.False(t, FileExists(filepath.Join(dir, "missing.sqlite")))
}

func TestRequireFileAndAbsent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "out.sqlite")

	err := RequireFile(file)
	require.Error(t, err)
	assert.True(t, dberrors.IsNotFoundError(err))
	assert.NoError(t, RequireAbsent(file))

	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.NoError(t, RequireFile(file))
	err = RequireAbsent(file)
	require.Error(t, err)
	assert.True(t, dberrors.IsInvalidConfigurationError(err))
}

func TestPathHelpers(t *testing.T) {
	testCases := []struct {
		path     string
		trimmed  string
		ext      string
		baseName string
	}{
		{path: "data/people.CSV", trimmed: "data/people", ext: "csv", baseName: "people"},
		{path: "db.anon.sqlite", trimmed: "db.anon", ext: "sqlite", baseName: "db.anon"},
		{path: "noext", trimmed: "noext", ext: "", baseName: "noext"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.trimmed, TrimExt(tc.path))
			assert.Equal(t, tc.ext, Ext(tc.path))
			assert.Equal(t, tc.baseName, BaseName(tc.path))
		})
	}
}

func TestRelHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, "~", RelHome(home))
	assert.Equal(t, "~/a/b.db", RelHome(filepath.Join(home, "a", "b.db")))
	assert.Equal(t, "/elsewhere/b.db", RelHome("/elsewhere/b.db"))
	assert.Equal(t, home+"x/b.db", RelHome(home+"x/b.db"))
}

func TestWriteFileWithOverwrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nested", "out.csv")

	written, err := WriteFileWithOverwrite(file, []byte("a"), 0o644, false)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = WriteFileWithOverwrite(file, []byte("b"), 0o644, false)
	require.NoError(t, err)
	assert.False(t, written)

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "a", string(content))

	written, err = WriteFileWithOverwrite(file, []byte("c"), 0o644, true)
	require.NoError(t, err)
	assert.True(t, written)
}
