package normalize

import (
	"testing"

	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T, script string) *dblite.DB {
	t.Helper()
	db, err := dblite.Open(dblite.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(false) })
	require.NoError(t, db.ExecuteScript(script))
	return db
}

type columnInfo struct {
	Name    string
	Type    string
	NotNull bool
}

func tableInfo(t *testing.T, db *dblite.DB, table string) []columnInfo {
	t.Helper()
	rows, err := db.All(`SELECT name, type, "notnull" FROM pragma_table_info(?) ORDER BY cid`, table)
	require.NoError(t, err)
	var out []columnInfo
	for _, r := range rows {
		name, _ := dblite.ToString(r[0])
		typ, _ := dblite.ToString(r[1])
		nn, _ := dblite.ToInt64(r[2])
		out = append(out, columnInfo{Name: name, Type: typ, NotNull: nn == 1})
	}
	return out
}

func TestNormalize_AccentedColumn(t *testing.T) {
	db := openDB(t, `
		CREATE TABLE t ("id" TEXT, "café" TEXT);
		INSERT INTO t VALUES ('1', 'x'), ('2', '');
	`)

	rebuilt, err := Normalize(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, rebuilt)

	assert.Equal(t, []columnInfo{
		{Name: "id", Type: "INTEGER", NotNull: true},
		{Name: "cafe", Type: "CHAR(1)", NotNull: false},
	}, tableInfo(t, db, "t"))

	rows, err := db.All("SELECT id, cafe FROM t ORDER BY rowid")
	require.NoError(t, err)
	assert.Equal(t, []dblite.Row{{int64(1), "x"}, {int64(2), nil}}, rows)
}

func TestNormalize_SecondPassIsNoop(t *testing.T) {
	db := openDB(t, `
		CREATE TABLE "Mis Datos (2024)" ("Código" TEXT, "Importe" REAL, "Nota" TEXT, "Vacía" TEXT, "Fecha" DATE);
		INSERT INTO "Mis Datos (2024)" VALUES
			(' 007 ', 1.0, 'uno', NULL, '2024-01-01'),
			('010', 2.0, 'tres  ', '', '2024-02-01'),
			('123', 3.0, NULL, '  ', NULL);
		CREATE TABLE "2nd" (v TEXT);
	`)

	rebuilt, err := Normalize(db)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mis_datos_2024", "t2nd"}, rebuilt)

	tables, err := db.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"mis_datos_2024", "t2nd"}, tables)

	assert.Equal(t, []columnInfo{
		{Name: "codigo", Type: "CHAR(3)", NotNull: true},
		{Name: "importe", Type: "INTEGER", NotNull: true},
		{Name: "nota", Type: "VARCHAR(4)", NotNull: false},
		{Name: "vacia", Type: "TEXT", NotNull: false},
		{Name: "fecha", Type: "DATE", NotNull: false},
	}, tableInfo(t, db, "mis_datos_2024"))

	n, err := New(db)
	require.NoError(t, err)
	again, err := n.Pass()
	require.NoError(t, err)
	assert.Empty(t, again)

	again, err = Normalize(db)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestNormalize_PreservesRowsAndNulls(t *testing.T) {
	db := openDB(t, `
		CREATE TABLE "Big Table" (a TEXT, b INTEGER, c REAL);
		WITH RECURSIVE s(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM s WHERE x < 250)
		INSERT INTO "Big Table" SELECT
			CASE WHEN x % 7 = 0 THEN NULL ELSE 'v' || x END,
			CASE WHEN x % 5 = 0 THEN NULL ELSE x END,
			x / 4.0
		FROM s;
	`)

	nullPositions := func(table, a, b string) []dblite.Row {
		rows, err := db.All("SELECT rowid, " + a + " IS NULL, " + b + " IS NULL FROM " + dblite.QuoteIdent(table) + " ORDER BY rowid")
		require.NoError(t, err)
		return rows
	}
	before := nullPositions("Big Table", "a", "b")

	_, err := Normalize(db)
	require.NoError(t, err)

	after := nullPositions("big_table", "a", "b")
	assert.Equal(t, before, after)
	assert.Len(t, after, 250)

	info := tableInfo(t, db, "big_table")
	assert.Equal(t, "REAL", info[2].Type, "fractional reals keep their type")
}

func TestNormalize_KeepsPrimaryKeyAndDefaults(t *testing.T) {
	db := openDB(t, `
		CREATE TABLE Parent (ID INTEGER PRIMARY KEY, Name TEXT DEFAULT 'none');
		INSERT INTO Parent (ID, Name) VALUES (10, 'a'), (20, 'bb');
	`)

	_, err := Normalize(db)
	require.NoError(t, err)

	pk, err := db.Strings("SELECT name FROM pragma_table_info('parent') WHERE pk > 0")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, pk)

	require.NoError(t, db.Insert("parent", map[string]any{"id": 30}))
	name, err := db.Scalar("SELECT name FROM parent WHERE id = 30")
	require.NoError(t, err)
	assert.Equal(t, "none", name)

	rowid, err := db.Int("SELECT rowid FROM parent WHERE name = 'bb'")
	require.NoError(t, err)
	assert.Equal(t, int64(20), rowid, "the primary key is still the rowid")
}

func TestNormalize_NothingToDo(t *testing.T) {
	db := openDB(t, `
		CREATE TABLE ok (id INTEGER NOT NULL, name VARCHAR(2));
		INSERT INTO ok VALUES (1, 'a'), (2, 'bb'), (3, NULL);
		CREATE TABLE empty (x TEXT);
	`)

	rebuilt, err := Normalize(db)
	require.NoError(t, err)
	assert.Empty(t, rebuilt)
}

func TestNormalize_SkipsLeftoverRebuildTable(t *testing.T) {
	db := openDB(t, `
		CREATE TABLE "TMP_data" (v TEXT);
		INSERT INTO "TMP_data" VALUES ('1');
	`)

	rebuilt, err := Normalize(db)
	require.NoError(t, err)
	assert.Empty(t, rebuilt)

	tables, err := db.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"TMP_data"}, tables)
}

func TestNormalize_RejectsReadOnly(t *testing.T) {
	path := t.TempDir() + "/ro.sqlite"
	rw, err := dblite.Open(path)
	require.NoError(t, err)
	require.NoError(t, rw.Execute("CREATE TABLE a (b)"))
	require.NoError(t, rw.Close(false))

	ro, err := dblite.Open(path, dblite.WithReadOnly())
	require.NoError(t, err)
	defer func() { _ = ro.Close(false) }()

	_, err = New(ro)
	assert.Error(t, err)
}

func TestNormalize_ColumnNameCollision(t *testing.T) {
	db := openDB(t, `
		CREATE TABLE t ("A b" TEXT, "a_b" TEXT);
		INSERT INTO t VALUES ('1', '2');
	`)

	_, err := Normalize(db)
	require.Error(t, err)
	assert.True(t, dberrors.IsInvalidConfigurationError(err))
	assert.Contains(t, err.Error(), `"A b"`)
	assert.Contains(t, err.Error(), `"a_b"`)

	assert.Equal(t, []columnInfo{{Name: "A b", Type: "TEXT"}, {Name: "a_b", Type: "TEXT"}}, tableInfo(t, db, "t"))
}

func TestNormalize_TableNameCollision(t *testing.T) {
	db := openDB(t, `
		CREATE TABLE "My Table" (v TEXT);
		CREATE TABLE "my-table" (v TEXT);
	`)

	_, err := Normalize(db)
	require.Error(t, err)
	assert.True(t, dberrors.IsInvalidConfigurationError(err))
	assert.Contains(t, err.Error(), `"My Table"`)
	assert.Contains(t, err.Error(), `"my-table"`)

	tables, err := db.Tables()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"My Table", "my-table"}, tables, "nothing is rebuilt")
}

func TestNormalize_TableNameTaken(t *testing.T) {
	db := openDB(t, `
		CREATE TABLE "My Table" (v TEXT);
		CREATE TABLE my_table (v TEXT);
	`)

	_, err := Normalize(db)
	assert.True(t, dberrors.IsInvalidConfigurationError(err))
}

func TestPlan_Statements(t *testing.T) {
	dflt := "0"
	plan := Plan{
		Table: "My Table",
		Name:  "my_table",
		Columns: []Column{
			{Original: "ID", Name: "id", Declared: "TEXT", Type: "INTEGER", NotNull: true, pk: 1},
			{Original: "Total €", Name: "total", Declared: "REAL", Type: "REAL", defaultValue: &dflt},
		},
	}

	assert.True(t, plan.NeedsRebuild())
	assert.Equal(t, []string{
		`CREATE TABLE "TMP_my_table" ("id" INTEGER NOT NULL, "total" REAL DEFAULT 0, PRIMARY KEY ("id"))`,
		`INSERT INTO "TMP_my_table" ("id", "total") SELECT "ID", "Total €" FROM "My Table"`,
		`DROP TABLE "My Table"`,
		`ALTER TABLE "TMP_my_table" RENAME TO "my_table"`,
	}, plan.Statements())
}

func TestCanBeInt(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{nil, true},
		{int64(-4), true},
		{2.0, true},
		{2.5, false},
		{"42", true},
		{"0", true},
		{"007", false},
		{"-3", false},
		{"4.0", false},
		{"", false},
		{"99999999999999999999", false},
		{[]byte("1"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanBeInt(c.in), "%#v", c.in)
	}
}
