package testutil

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/lepinkainen/dbtools/internal/config"
	"github.com/lepinkainen/dbtools/internal/dblite"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestEnv_Path(t *testing.T) {
	env := NewTestEnv(t)

	path := env.Path("subdir", "file.txt")
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, filepath.Join(env.RootDir(), "subdir", "file.txt"), path)
	assert.Equal(t, env.RootDir(), env.Path())
}

func TestTestEnv_WriteReadFile(t *testing.T) {
	env := NewTestEnv(t)

	abs := env.WriteFileString("nested/dir/test.txt", "test content")
	assert.Equal(t, env.Path("nested", "dir", "test.txt"), abs)
	assert.Equal(t, "test content", env.ReadFileString("nested/dir/test.txt"))
	assert.True(t, env.FileExists("nested/dir/test.txt"))
	assert.False(t, env.FileExists("nested/missing.txt"))
}

func TestTestEnv_ListFiles(t *testing.T) {
	env := NewTestEnv(t)
	env.WriteFileString("d/b.sql", "")
	env.WriteFileString("d/a.sql", "")
	env.MkdirAll("d/sub")

	assert.Equal(t, []string{"a.sql", "b.sql", "sub"}, env.ListFiles("d"))
}

func TestTestEnv_SetEnv(t *testing.T) {
	t.Run("inner", func(t *testing.T) {
		env := NewTestEnv(t)
		env.SetEnv("DBTOOLS_TESTUTIL_VAR", "set")
		assert.Equal(t, "set", os.Getenv("DBTOOLS_TESTUTIL_VAR"))
	})
	_, ok := os.LookupEnv("DBTOOLS_TESTUTIL_VAR")
	assert.False(t, ok)
}

func TestTestEnv_SQLiteFile(t *testing.T) {
	env := NewTestEnv(t)
	path := env.SQLiteFile("db/fixture.sqlite", `
		CREATE TABLE t (a INTEGER);
		INSERT INTO t VALUES (1), (2);
	`)

	db, err := dblite.Open(path, dblite.WithReadOnly())
	require.NoError(t, err)
	defer func() { _ = db.Close(false) }()

	n, err := db.Int("SELECT sum(a) FROM t")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestTestEnv_ZipFile(t *testing.T) {
	env := NewTestEnv(t)
	path := env.ZipFile("bundle.zip", map[string]string{
		"b.csv":       "x\n1\n",
		"inner/a.sql": "CREATE TABLE a (b);",
	})

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	require.Len(t, zr.File, 2)
	assert.Equal(t, "b.csv", zr.File[0].Name)
	assert.Equal(t, "inner/a.sql", zr.File[1].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "x\n1\n", string(body))
}

func TestGoldenHelper_AssertGolden(t *testing.T) {
	env := NewTestEnv(t)
	env.WriteFileString("golden/test.golden", "expected content")

	golden := NewGoldenHelper(t, env.Path("golden"))
	golden.AssertGoldenString("test.golden", "expected content")

	actual := env.WriteFileString("out.txt", "expected content")
	golden.AssertGoldenFile(actual, "test.golden")
}

func TestGoldenHelper_GoldenPath(t *testing.T) {
	golden := NewGoldenHelper(t, "/some/golden/dir")
	assert.Equal(t, "/some/golden/dir/test.golden", golden.GoldenPath("test.golden"))
}

func TestGoldenHelper_IsUpdateMode(t *testing.T) {
	t.Setenv("UPDATE_GOLDEN", "")
	golden := NewGoldenHelper(t, "testdata")
	assert.False(t, golden.IsUpdateMode())
}

func TestSetTestConfig(t *testing.T) {
	config.CommitEvery = 7
	config.CSVDelimiter = "|"

	t.Run("inner", func(t *testing.T) {
		SetTestConfig(t)
		assert.Equal(t, config.DefaultCommitEvery, config.CommitEvery)
		assert.Equal(t, ",", config.CSVDelimiter)
	})

	assert.Equal(t, 7, config.CommitEvery)
	assert.Equal(t, "|", config.CSVDelimiter)
}

func TestSetViperValue(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Run("inner", func(t *testing.T) {
		SetViperValue(t, "dump.max_rows", 3)
		assert.Equal(t, 3, viper.GetInt("dump.max_rows"))
		assert.Equal(t, 3, config.DumpMaxRows)
	})
}

func TestSaveRestoreConfigState(t *testing.T) {
	config.CommitEvery = 10
	config.PostgresSchema = "saved"
	config.Extensions = []string{"a.so"}

	state := SaveConfigState()

	config.CommitEvery = 20
	config.PostgresSchema = "modified"
	config.Extensions = nil

	RestoreConfigState(state)

	assert.Equal(t, 10, config.CommitEvery)
	assert.Equal(t, "saved", config.PostgresSchema)
	assert.Equal(t, []string{"a.so"}, config.Extensions)
}
