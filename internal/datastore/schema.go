package datastore

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lepinkainen/dbtools/internal/dblite"
)

// PostgreSQL column types a SQLite column can map to
const (
	PGBigint  = "bigint"
	PGDouble  = "double precision"
	PGNumeric = "numeric"
	PGBytea   = "bytea"
	PGText    = "text"
)

// ColumnDef is one column of a copied table
type ColumnDef struct {
	Name string
	// Declared is the SQLite declared type
	Declared string
	// Type is the PostgreSQL type Declared maps to
	Type       string
	NotNull    bool
	PrimaryKey int
}

// TableDef describes a table being copied
type TableDef struct {
	// Schema is the PostgreSQL schema; "" for the default search path
	Schema  string
	Name    string
	Columns []ColumnDef
}

// ReadTable loads the definition of table from db.
func ReadTable(db *dblite.DB, table, schema string) (*TableDef, error) {
	rows, err := db.All(`SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	def := &TableDef{Schema: schema, Name: table}
	for _, r := range rows {
		name, _ := dblite.ToString(r[0])
		declared, _ := dblite.ToString(r[1])
		notNull, _ := dblite.ToInt64(r[2])
		pk, _ := dblite.ToInt64(r[3])
		def.Columns = append(def.Columns, ColumnDef{
			Name:       name,
			Declared:   declared,
			Type:       PostgresType(declared),
			NotNull:    notNull == 1,
			PrimaryKey: int(pk),
		})
	}
	return def, nil
}

var sizedChar = regexp.MustCompile(`^(VAR)?CHAR(ACTER)?\s*\(\s*(\d+)\s*\)$`)

// PostgresType maps a SQLite declared type to a PostgreSQL one.
func PostgresType(declared string) string {
	d := strings.ToUpper(strings.TrimSpace(declared))
	if m := sizedChar.FindStringSubmatch(d); m != nil {
		if m[1] != "" {
			return "varchar(" + m[3] + ")"
		}
		return "char(" + m[3] + ")"
	}
	switch {
	case strings.Contains(d, "INT"):
		return PGBigint
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return PGDouble
	case strings.Contains(d, "NUMERIC"), strings.Contains(d, "DECIMAL"):
		return PGNumeric
	case strings.Contains(d, "BLOB"):
		return PGBytea
	}
	return PGText
}

// Identifier is the quoted-on-demand PostgreSQL name of the table.
func (t *TableDef) Identifier() pgx.Identifier {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Schema, t.Name}
}

// ColumnNames lists the column names in table order.
func (t *TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// primaryKey returns the key columns in key order.
func (t *TableDef) primaryKey() []string {
	var keys []string
	for n := 1; ; n++ {
		found := false
		for _, c := range t.Columns {
			if c.PrimaryKey == n {
				keys = append(keys, c.Name)
				found = true
			}
		}
		if !found {
			return keys
		}
	}
}

// CreateSQL is the PostgreSQL CREATE TABLE statement for t.
func (t *TableDef) CreateSQL() string {
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def := pgx.Identifier{c.Name}.Sanitize() + " " + c.Type
		if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if keys := t.primaryKey(); len(keys) > 0 {
		quoted := make([]string, len(keys))
		for i, k := range keys {
			quoted[i] = pgx.Identifier{k}.Sanitize()
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", t.Identifier().Sanitize(), strings.Join(defs, ", "))
}

// DropSQL is the PostgreSQL DROP TABLE statement for t.
func (t *TableDef) DropSQL() string {
	return "DROP TABLE IF EXISTS " + t.Identifier().Sanitize()
}

// Convert turns a SQLite value into one PostgreSQL accepts for pgType.
// Values that do not fit pgType are an error.
func Convert(pgType string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t, ok := v.(time.Time); ok {
		v = t.Format(time.RFC3339Nano)
	}

	switch pgType {
	case PGBigint:
		if n, ok := dblite.ToInt64(v); ok {
			return n, nil
		}
	case PGDouble, PGNumeric:
		switch x := v.(type) {
		case int64:
			if pgType == PGNumeric {
				return x, nil
			}
			return float64(x), nil
		case float64:
			return x, nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
				return f, nil
			}
		}
	case PGBytea:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	default:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		s, _ := dblite.ToString(v)
		return s, nil
	}
	return nil, fmt.Errorf("value %s does not fit a %s column", dblite.QuoteLiteral(v), pgType)
}
