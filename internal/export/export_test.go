package export

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const fixture = `
CREATE TABLE sales (region TEXT, amount REAL, units REAL, day DATE, raw BLOB);
INSERT INTO sales VALUES ('north', 10.5, 2.0, '2024-01-02', X'01');
INSERT INTO sales VALUES ('south', 20.0, 3.0, '2024-01-03', NULL);
INSERT INTO sales VALUES ('south', 1.0, NULL, NULL, NULL);
`

func openFixture(t *testing.T, env *testutil.TestEnv) *dblite.DB {
	t.Helper()
	path := env.SQLiteFile("sales.sqlite", fixture)
	db, err := dblite.Open(path, dblite.WithReadOnly())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(false) })
	return db
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{"single", "SELECT 1", []string{"SELECT 1"}},
		{"trailing semicolon", " SELECT 1 ;\n", []string{"SELECT 1"}},
		{"several", "CREATE TEMP VIEW v AS SELECT 1;\nSELECT * FROM v;", []string{"CREATE TEMP VIEW v AS SELECT 1", "SELECT * FROM v"}},
		{"quoted semicolons", `SELECT 'a;b', "c;d", [e;f], ` + "`g;h`" + `; SELECT 'it''s;'`, []string{`SELECT 'a;b', "c;d", [e;f], ` + "`g;h`", `SELECT 'it''s;'`}},
		{"comments", "-- setup; ignored\nSELECT 1; /* done; */\n-- trailing", []string{"-- setup; ignored\nSELECT 1"}},
		{"empty pieces", ";;  ;", nil},
		{"unterminated quote", "SELECT 'a;", []string{"SELECT 'a;"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script))
		})
	}
}

func TestQueries(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFileString("q/b.sql", "SELECT 1")
	env.WriteFileString("q/_helper.sql", "SELECT 1")
	env.WriteFileString("q/notes.txt", "x")
	env.WriteFileString("q/sub/a.SQL", "SELECT 1")

	got, err := Queries(env.Path("q"))
	require.NoError(t, err)
	assert.Equal(t, []string{env.Path("q", "b.sql"), env.Path("q", "sub", "a.SQL")}, got)

	_, err = Queries(env.Path("missing"))
	assert.Error(t, err)
}

func TestFile(t *testing.T) {
	env := testutil.NewTestEnv(t)
	db := openFixture(t, env)
	query := env.WriteFileString("out/by_region.sql", `
CREATE TEMP VIEW totals AS
SELECT region, sum(amount) AS amount, sum(units) AS units, count(*) AS n
FROM sales GROUP BY region;
SELECT * FROM totals ORDER BY region;
`)

	r, err := File(db, query, false)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Rows)
	assert.False(t, r.Skipped)

	assert.Equal(t, "region,amount,units,n\nnorth,10.5,2,1\nsouth,21,3,2\n", env.ReadFileString("out/by_region.csv"))

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.ReadFileString("out/by_region.json")), &records))
	assert.Equal(t, []map[string]any{
		{"region": "north", "amount": 10.5, "units": float64(2), "n": float64(1)},
		{"region": "south", "amount": float64(21), "units": float64(3), "n": float64(2)},
	}, records)

	book, err := excelize.OpenFile(r.XLSX)
	require.NoError(t, err)
	defer func() { _ = book.Close() }()
	assert.Equal(t, []string{"by_region"}, book.GetSheetList())
	cells, err := book.GetRows("by_region")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"region", "amount", "units", "n"},
		{"north", "10.5", "2", "1"},
		{"south", "21", "3", "2"},
	}, cells)
}

func TestFile_RewritesWhenAnOutputIsMissing(t *testing.T) {
	env := testutil.NewTestEnv(t)
	db := openFixture(t, env)
	query := env.WriteFileString("count.sql", "SELECT count(*) AS n FROM sales")
	env.WriteFileString("count.csv", "old")
	env.WriteFileString("count.json", "old")

	r, err := File(db, query, false)
	require.NoError(t, err)
	assert.False(t, r.Skipped)
	assert.Equal(t, "n\n3\n", env.ReadFileString("count.csv"))
	assert.True(t, env.FileExists("count.xlsx"))
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "by_region", sheetName("by_region"))
	assert.Equal(t, "a_b_c", sheetName("a[b]c"))
	assert.Equal(t, "Sheet1", sheetName("''"))
	assert.Equal(t, strings.Repeat("é", 31), sheetName(strings.Repeat("é", 40)))
}

func TestFile_ValuesAsText(t *testing.T) {
	env := testutil.NewTestEnv(t)
	db := openFixture(t, env)
	query := env.WriteFileString("raw.sql", "SELECT region, raw, units FROM sales ORDER BY rowid")

	_, err := File(db, query, false)
	require.NoError(t, err)
	assert.Equal(t, "region,raw,units\nnorth,X'01',2\nsouth,,3\nsouth,,\n", env.ReadFileString("raw.csv"))
}

func TestFile_SkipsExistingOutputs(t *testing.T) {
	env := testutil.NewTestEnv(t)
	db := openFixture(t, env)
	query := env.WriteFileString("count.sql", "SELECT count(*) AS n FROM sales")
	env.WriteFileString("count.csv", "old")
	env.WriteFileString("count.json", "old")
	env.WriteFileString("count.xlsx", "old")

	r, err := File(db, query, false)
	require.NoError(t, err)
	assert.True(t, r.Skipped)
	assert.Equal(t, "old", env.ReadFileString("count.csv"))

	r, err = File(db, query, true)
	require.NoError(t, err)
	assert.False(t, r.Skipped)
	assert.Equal(t, "n\n3\n", env.ReadFileString("count.csv"))
}

func TestFile_Errors(t *testing.T) {
	env := testutil.NewTestEnv(t)
	db := openFixture(t, env)

	empty := env.WriteFileString("empty.sql", "-- nothing here\n")
	_, err := File(db, empty, false)
	assert.Error(t, err)

	bad := env.WriteFileString("bad.sql", "SELECT nope FROM sales")
	_, err = File(db, bad, false)
	assert.True(t, dberrors.IsSQLError(err))
	assert.False(t, env.FileExists("bad.csv"))
}

func TestRun(t *testing.T) {
	env := testutil.NewTestEnv(t)
	db := openFixture(t, env)
	env.WriteFileString("q/_setup.sql", "SELECT 1")
	env.WriteFileString("q/a.sql", "SELECT region FROM sales WHERE amount > 5 ORDER BY region")
	env.WriteFileString("q/b.sql", "SELECT max(amount) AS top FROM sales")

	results, err := Run(db, env.Path("q"), false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Rows)
	assert.Equal(t, 1, results[1].Rows)

	assert.Equal(t, []string{"_setup.sql", "a.csv", "a.json", "a.sql", "a.xlsx", "b.csv", "b.json", "b.sql", "b.xlsx"}, env.ListFiles("q"))
	assert.Equal(t, "top\n20\n", env.ReadFileString("q/b.csv"))
}
