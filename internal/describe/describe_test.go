package describe

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

const fixture = `
CREATE TABLE nums (i INTEGER, r REAL, f REAL, code TEXT, name TEXT, blank TEXT, raw BLOB);
INSERT INTO nums VALUES (1, 1.0, 1.5, '007', 'pear', NULL, X'00FF');
INSERT INTO nums VALUES (2, 2.0, 2.0, '12', 'apple', '', NULL);
INSERT INTO nums VALUES (2, NULL, 3.0, '', 'apple', NULL, NULL);
CREATE TABLE nothing (a);
`

func TestDescribe(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.SQLiteFile("profile.sqlite", fixture)

	f, err := Describe(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "profile.sqlite", f.Name())
	assert.Positive(t, f.Size)
	assert.Len(t, f.Checksum, 64)

	require.Len(t, f.Tables, 2)
	assert.Equal(t, Table{
		Name: "nothing",
		Rows: 0,
		Columns: []Column{
			{Name: "a"},
		},
	}, f.Tables[0])

	nums := f.Tables[1]
	assert.Equal(t, "nums", nums.Name)
	assert.Equal(t, int64(3), nums.Rows)
	assert.Equal(t, []Column{
		{Name: "i", Type: TypeInt, Min: int64(1), Max: int64(2), Distinct: 2, Empty: 0},
		{Name: "r", Type: TypeIntegralReal, Min: int64(1), Max: int64(2), Distinct: 2, Empty: 1},
		{Name: "f", Type: "real", Min: 1.5, Max: int64(3), Distinct: 3, Empty: 0},
		{Name: "code", Type: TypeDigits, Min: "", Max: "12", Distinct: 2, Empty: 1},
		{Name: "name", Type: "text", Min: "apple", Max: "pear", Distinct: 2, Empty: 0},
		{Name: "blank", Type: "", Min: "", Max: "", Distinct: 0, Empty: 3},
		{Name: "raw", Type: "blob", Min: "X'00FF'", Max: "X'00FF'", Distinct: 1, Empty: 2},
	}, nums.Columns)
}

func TestDescribe_LeavesFileUntouched(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.SQLiteFile("profile.sqlite", fixture)
	before, _, err := Checksum(path)
	require.NoError(t, err)

	_, err = Describe(context.Background(), path)
	require.NoError(t, err)

	after, _, err := Checksum(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDescribe_Missing(t *testing.T) {
	env := testutil.NewTestEnv(t)
	_, err := Describe(context.Background(), env.Path("nope.sqlite"))
	assert.True(t, dberrors.IsNotFoundError(err))
}

func TestDescribeAll_KeepsOrder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	var paths []string
	for _, name := range []string{"c.sqlite", "a.sqlite", "b.sqlite", "d.sqlite"} {
		paths = append(paths, env.SQLiteFile(name, "CREATE TABLE t (x); INSERT INTO t VALUES (1);"))
	}

	files, err := DescribeAll(context.Background(), paths, 2)
	require.NoError(t, err)
	require.Len(t, files, len(paths))
	for i, f := range files {
		assert.Equal(t, paths[i], f.Path)
	}

	_, err = DescribeAll(context.Background(), append(paths, env.Path("missing.sqlite")), 0)
	assert.True(t, dberrors.IsNotFoundError(err))
}

func TestChecksum(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.WriteFileString("data.bin", "hello world")

	sum, size, err := Checksum(path)
	require.NoError(t, err)
	want := blake3.Sum256([]byte("hello world"))
	assert.Equal(t, int64(11), size)
	assert.Equal(t, hex.EncodeToString(want[:]), sum)
}

var sample = []*File{{
	Path:     "/data/db.sqlite",
	Size:     10,
	Checksum: "abc",
	Tables: []Table{{
		Name: "t",
		Rows: 2,
		Columns: []Column{
			{Name: "id", Type: TypeInt, Min: int64(1), Max: int64(2), Distinct: 2},
			{Name: "a|b", Type: "text", Min: "x", Max: nil, Distinct: 1, Empty: 1},
		},
	}},
}}

func TestMarkdown(t *testing.T) {
	got := Markdown(sample)

	assert.True(t, strings.HasPrefix(got, legend))
	assert.Equal(t, legend+"\n# db.sqlite\n\nblake3 `abc`, 10 bytes\n\n## t (2 rows)\n\n"+
		"| Column         | Type |       Min |       Max | Distinct | Empty |\n"+
		"|:---------------|:-----|----------:|----------:|---------:|------:|\n"+
		"| id             | int  |         1 |         2 |        2 |     0 |\n"+
		"| a\\|b           | text |         x |           |        1 |     1 |\n", got)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sample, FormatJSON))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "abc", decoded[0]["blake3"])

	buf.Reset()
	require.NoError(t, Render(&buf, sample, FormatYAML))
	var fromYAML []File
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	require.Len(t, fromYAML, 1)
	assert.Equal(t, "t", fromYAML[0].Tables[0].Name)
	assert.Equal(t, int64(2), fromYAML[0].Tables[0].Columns[0].Distinct)

	buf.Reset()
	require.NoError(t, Render(&buf, sample, ""))
	assert.Equal(t, Markdown(sample), buf.String())

	err := Render(&buf, sample, "xml")
	assert.True(t, dberrors.IsInvalidConfigurationError(err))
}
