package ingest

import (
	"bytes"
	"context"
	"os"
	"runtime"
	"testing"

	"github.com/lepinkainen/dbtools/internal/csvutil"
	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
)

func open(t *testing.T, path string, opts Options) *dblite.DB {
	t.Helper()
	db, err := Open(context.Background(), path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(false) })
	return db
}

func rows(t *testing.T, db *dblite.DB, query string) []dblite.Row {
	t.Helper()
	out, err := db.All(query)
	require.NoError(t, err)
	return out
}

func TestKind(t *testing.T) {
	cases := map[string]string{
		"a.sqlite":     KindSQLite,
		"a.SQLITE3":    KindSQLite,
		"a.db":         KindSQLite,
		"dump.sql":     KindSQL,
		"dump.SQL.xz":  KindSQLXZ,
		"data.csv":     KindCSV,
		"data.tsv":     KindTSV,
		"book.xlsx":    KindXLSX,
		"macro.XLSM":   KindXLSX,
		"legacy.xls":   "",
		"bundle.zip":   KindZip,
		"legacy.accdb": KindMDB,
		"legacy.mdb":   KindMDB,
		"notes.txt":    "",
		"archive.xz":   "",
		"no_extension": "",
	}
	for path, want := range cases {
		assert.Equal(t, want, Kind(path), path)
		assert.Equal(t, want != "", Supported(path), path)
	}
}

func TestOpen_Errors(t *testing.T) {
	env := testutil.NewTestEnv(t)

	_, err := Open(context.Background(), env.Path("missing.csv"), Options{})
	assert.True(t, dberrors.IsNotFoundError(err))

	txt := env.WriteFileString("notes.txt", "hello")
	_, err = Open(context.Background(), txt, Options{})
	assert.True(t, dberrors.IsInvalidConfigurationError(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	script := env.WriteFileString("a.sql", "CREATE TABLE a (b);")
	_, err = Open(ctx, script, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen_SQLite(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.SQLiteFile("src.sqlite", "CREATE TABLE t (a); INSERT INTO t VALUES (1), (2);")

	db := open(t, path, Options{})
	assert.Equal(t, []dblite.Row{{int64(1)}, {int64(2)}}, rows(t, db, "SELECT a FROM t ORDER BY a"))

	require.NoError(t, db.Execute("INSERT INTO t VALUES (3)"))

	src, err := dblite.Open(path, dblite.WithReadOnly())
	require.NoError(t, err)
	defer func() { _ = src.Close(false) }()
	n, err := src.Int("SELECT count(*) FROM t")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "the source file is never written")
}

func TestOpen_SQLScripts(t *testing.T) {
	env := testutil.NewTestEnv(t)
	script := "CREATE TABLE s (v TEXT); INSERT INTO s VALUES ('x'), ('y');"

	plain := env.WriteFileString("plain.sql", script)
	assert.Len(t, rows(t, open(t, plain, Options{}), "SELECT * FROM s"), 2)

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte(script))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	compressed := env.WriteFile("packed.sql.xz", buf.Bytes())

	assert.Equal(t, []dblite.Row{{"x"}, {"y"}}, rows(t, open(t, compressed, Options{}), "SELECT v FROM s ORDER BY v"))

	broken := env.WriteFileString("broken.sql", "CREATE TABLE oops (")
	_, err = Open(context.Background(), broken, Options{})
	assert.True(t, dberrors.IsSQLError(err))

	notXZ := env.WriteFileString("fake.sql.xz", script)
	_, err = Open(context.Background(), notXZ, Options{})
	assert.Error(t, err)
}

func TestOpen_CSV(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.WriteFileString("2024 Ventas Año.csv",
		";;\n"+
			"Código;Descripción del producto;Código\n"+
			" 1 ;Café;A\n"+
			"2;;B\n"+
			";;\n"+
			"3;Té;\n")

	db := open(t, path, Options{CSV: csvutil.Options{Comma: ';'}})
	tables, err := db.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"t2024_ventas_ano"}, tables)

	cols, err := db.Columns("t2024_ventas_ano")
	require.NoError(t, err)
	assert.Equal(t, []string{"codigo", "descripcion_del_producto", "codigo_2"}, cols)

	assert.Equal(t, []dblite.Row{
		{"1", "Café", "A"},
		{"2", nil, "B"},
		{"3", "Té", nil},
	}, rows(t, db, "SELECT * FROM t2024_ventas_ano ORDER BY rowid"))
}

func TestOpen_CSVEncodings(t *testing.T) {
	env := testutil.NewTestEnv(t)

	bom := env.WriteFile("bom.csv", append([]byte{0xEF, 0xBB, 0xBF}, []byte("name\nÅsa\n")...))
	assert.Equal(t, []dblite.Row{{"Åsa"}}, rows(t, open(t, bom, Options{}), "SELECT name FROM bom"))

	latin := env.WriteFile("latin.csv", []byte("name\n\xc5sa\n"))
	db := open(t, latin, Options{CSV: csvutil.Options{Encoding: "latin1"}})
	assert.Equal(t, []dblite.Row{{"Åsa"}}, rows(t, db, "SELECT name FROM latin"))

	_, err := Open(context.Background(), latin, Options{CSV: csvutil.Options{Encoding: "klingon"}})
	assert.True(t, dberrors.IsInvalidConfigurationError(err))

	empty := env.WriteFileString("empty.csv", "\n\n")
	_, err = Open(context.Background(), empty, Options{})
	assert.Error(t, err)
}

func TestOpen_TSV(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.WriteFileString("items.tsv", "id\tname\n1\tone, with comma\n")

	db := open(t, path, Options{CSV: csvutil.Options{Comma: ';'}})
	assert.Equal(t, []dblite.Row{{"1", "one, with comma"}}, rows(t, db, "SELECT id, name FROM items"))
}

func writeWorkbook(t *testing.T, path string, sheets []string, rows map[string][][]any) string {
	t.Helper()
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()
	for i, sheet := range sheets {
		if i == 0 {
			require.NoError(t, book.SetSheetName("Sheet1", sheet))
		} else {
			_, err := book.NewSheet(sheet)
			require.NoError(t, err)
		}
		for j, row := range rows[sheet] {
			cell, err := excelize.CoordinatesToCellName(1, j+1)
			require.NoError(t, err)
			require.NoError(t, book.SetSheetRow(sheet, cell, &row))
		}
	}
	require.NoError(t, book.SaveAs(path))
	return path
}

func TestOpen_XLSX(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := writeWorkbook(t, env.Path("ventas.xlsx"), []string{"Main", "Extra Data", "Notes"}, map[string][][]any{
		"Main": {
			{"", ""},
			{"Código", "Descripción", "Código"},
			{" 1 ", "Café", "A"},
			{"2", "", "B"},
			{"", "", ""},
			{"3", "Té", ""},
		},
		"Extra Data": {
			{"k"},
			{"v"},
		},
	})

	db := open(t, path, Options{})
	tables, err := db.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"ventas", "ventas_extra_data"}, tables, "empty sheets are skipped")

	cols, err := db.Columns("ventas")
	require.NoError(t, err)
	assert.Equal(t, []string{"codigo", "descripcion", "codigo_2"}, cols)

	assert.Equal(t, []dblite.Row{
		{"1", "Café", "A"},
		{"2", nil, "B"},
		{"3", "Té", nil},
	}, rows(t, db, "SELECT * FROM ventas ORDER BY rowid"))
	assert.Equal(t, []dblite.Row{{"v"}}, rows(t, db, "SELECT k FROM ventas_extra_data"))
}

func TestOpen_XLSXErrors(t *testing.T) {
	env := testutil.NewTestEnv(t)

	empty := writeWorkbook(t, env.Path("empty.xlsx"), []string{"Sheet1"}, nil)
	_, err := Open(context.Background(), empty, Options{})
	assert.Error(t, err)

	fake := env.WriteFileString("fake.xlsx", "not a workbook")
	_, err = Open(context.Background(), fake, Options{})
	assert.Error(t, err)
}

func TestOpen_Zip(t *testing.T) {
	env := testutil.NewTestEnv(t)
	inner := env.ZipFile("inner.zip", map[string]string{"deep/c.csv": "z\n9\n"})
	innerBytes, err := os.ReadFile(inner)
	require.NoError(t, err)

	path := env.ZipFile("bundle.zip", map[string]string{
		"a.sql":        "CREATE TABLE a (x); INSERT INTO a VALUES (1);",
		"dir/b.csv":    "y\nhello\n",
		"readme.txt":   "ignored",
		"nested.zip":   string(innerBytes),
		"other/b2.tsv": "w\tv\n1\t2\n",
	})

	db := open(t, path, Options{})
	tables, err := db.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "b2", "c"}, tables)
	assert.Equal(t, []dblite.Row{{int64(1)}}, rows(t, db, "SELECT x FROM a"))
	assert.Equal(t, []dblite.Row{{"hello"}}, rows(t, db, "SELECT y FROM b"))
	assert.Equal(t, []dblite.Row{{"1", "2"}}, rows(t, db, "SELECT w, v FROM b2"))
	assert.Equal(t, []dblite.Row{{"9"}}, rows(t, db, "SELECT z FROM c"))
}

func TestOpen_ZipWithClashingTables(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.ZipFile("clash.zip", map[string]string{
		"one/data.csv": "a\n1\n",
		"two/data.csv": "a\n2\n",
	})

	_, err := Open(context.Background(), path, Options{})
	assert.Error(t, err)
}

func TestColumnNames(t *testing.T) {
	assert.Equal(t,
		[]string{"id", "id_2", "id_3", "c", "c_2", "name"},
		ColumnNames([]string{"ID", "id", " Id ", "", "", "Name"}))
	assert.Equal(t,
		[]string{"a_2", "a", "a_3"},
		ColumnNames([]string{"a_2", "a", "A"}))
}

func TestSchemaHelpers(t *testing.T) {
	withRelations := "CREATE TABLE a (x varchar);\nALTER TABLE b ADD CONSTRAINT fk FOREIGN KEY (y) REFERENCES a (x);\n"
	assert.True(t, HasRelations(withRelations))
	assert.False(t, HasRelations("CREATE TABLE a (x INTEGER);\n"))

	assert.Equal(t,
		"CREATE TABLE a (\n\tx TEXT,\n\ty varchar (10),\n\tz TEXT\n);",
		FixSchema("CREATE TABLE a (\n\tx varchar,\n\ty varchar (10),\n\tz varchar\n);"))
}

const fakeSchema = `CREATE TABLE people (
	id INTEGER,
	name varchar
);
CREATE TABLE empty (
	x varchar
);
`

// fakeMDBTools puts shell scripts standing in for mdbtools first in PATH.
func fakeMDBTools(t *testing.T, env *testutil.TestEnv) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake mdbtools are shell scripts")
	}
	schema := env.WriteFileString("fixtures/schema.sql", fakeSchema)
	relations := env.WriteFileString("fixtures/relations.sql",
		"ALTER TABLE empty ADD CONSTRAINT fk FOREIGN KEY (x) REFERENCES people (id);\n")

	bin := env.MkdirAll("bin")
	write := func(name, body string) {
		p := env.WriteFileString("bin/"+name, "#!/bin/sh\n"+body)
		require.NoError(t, os.Chmod(p, 0o755))
	}
	write("mdb-schema", `if [ "$1" = "--no-relations" ]; then cat '`+schema+`'; else cat '`+schema+`' '`+relations+`'; fi
`)
	write("mdb-tables", "printf 'people\\nempty\\n'\n")
	write("mdb-export", `if [ "$6" = "people" ]; then echo "INSERT INTO people (id, name) VALUES (1,'Ann');"; fi
`)
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestOpen_MDB(t *testing.T) {
	env := testutil.NewTestEnv(t)
	fakeMDBTools(t, env)
	path := env.WriteFileString("legacy.accdb", "not really an access file")

	db := open(t, path, Options{})
	assert.Equal(t, []dblite.Row{{int64(1), "Ann"}}, rows(t, db, "SELECT id, name FROM people"))
	assert.Empty(t, rows(t, db, "SELECT * FROM empty"))

	typ, err := db.Scalar("SELECT type FROM pragma_table_info('people') WHERE name = 'name'")
	require.NoError(t, err)
	assert.Equal(t, "TEXT", typ)
}

func TestOpen_MDBWithoutTools(t *testing.T) {
	env := testutil.NewTestEnv(t)
	t.Setenv("PATH", env.MkdirAll("empty-bin"))
	path := env.WriteFileString("legacy.mdb", "x")

	_, err := Open(context.Background(), path, Options{})
	assert.True(t, dberrors.IsInvalidConfigurationError(err))
}
