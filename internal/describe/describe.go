// Package describe profiles the tables of SQLite files: row counts, column
// storage types, ranges and how many values are distinct or missing.
package describe

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/lepinkainen/dbtools/internal/dblite"
	"github.com/lepinkainen/dbtools/internal/fileutil"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// Type labels beyond SQLite's own storage classes.
const (
	// TypeInt is a column whose first value is an integer.
	TypeInt = "int"
	// TypeIntegralReal is a real column whose values are all integral.
	TypeIntegralReal = "int!"
	// TypeDigits is a text column whose values are all digit strings.
	TypeDigits = "int?"
)

// Column is the profile of one column.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	Min  any    `json:"min" yaml:"min"`
	Max  any    `json:"max" yaml:"max"`
	// Distinct counts different values that are neither null nor empty.
	Distinct int64 `json:"distinct" yaml:"distinct"`
	// Empty counts rows where the column is null or ''.
	Empty int64 `json:"empty" yaml:"empty"`
}

// Table is the profile of one table.
type Table struct {
	Name    string   `json:"name" yaml:"name"`
	Rows    int64    `json:"rows" yaml:"rows"`
	Columns []Column `json:"columns" yaml:"columns"`
}

// File is the profile of one database file.
type File struct {
	Path     string  `json:"path" yaml:"path"`
	Size     int64   `json:"size" yaml:"size"`
	Checksum string  `json:"blake3" yaml:"blake3"`
	Tables   []Table `json:"tables" yaml:"tables"`
}

// Name is the base name of the file.
func (f *File) Name() string {
	return filepath.Base(f.Path)
}

// Describe profiles every table of the database at path, opened read-only.
func Describe(ctx context.Context, path string, opts ...dblite.Option) (*File, error) {
	if err := fileutil.RequireFile(path); err != nil {
		return nil, err
	}
	sum, size, err := Checksum(path)
	if err != nil {
		return nil, err
	}

	db, err := dblite.Open(path, append(opts, dblite.WithReadOnly())...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close(false) }()

	tables, err := db.Tables()
	if err != nil {
		return nil, err
	}

	out := &File{Path: path, Size: size, Checksum: sum}
	for _, name := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := describeTable(db, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe %s in %s: %w", name, path, err)
		}
		out.Tables = append(out.Tables, *t)
	}
	slog.Debug("described", "file", path, "tables", len(out.Tables))
	return out, nil
}

// DescribeAll profiles several files concurrently, at most limit at a
// time (no limit when limit < 1). Results keep the order of paths.
func DescribeAll(ctx context.Context, paths []string, limit int, opts ...dblite.Option) ([]*File, error) {
	out := make([]*File, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		g.Go(func() error {
			f, err := Describe(ctx, path, opts...)
			if err != nil {
				return err
			}
			out[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Checksum returns the blake3 hex digest and size of the file at path.
func Checksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func describeTable(db *dblite.DB, table string) (*Table, error) {
	q := dblite.QuoteIdent(table)
	rows, err := db.Int("SELECT count(*) FROM " + q)
	if err != nil {
		return nil, err
	}
	cols, err := db.Columns(table)
	if err != nil {
		return nil, err
	}

	t := &Table{Name: table, Rows: rows, Columns: make([]Column, 0, len(cols))}
	for _, col := range cols {
		c, err := describeColumn(db, q, col)
		if err != nil {
			return nil, err
		}
		t.Columns = append(t.Columns, *c)
	}
	return t, nil
}

func describeColumn(db *dblite.DB, q, col string) (*Column, error) {
	c := dblite.QuoteIdent(col)
	present := fmt.Sprintf("%s IS NOT NULL AND %s != ''", c, c)

	row, err := db.All(fmt.Sprintf(
		"SELECT min(%[1]s), max(%[1]s), count(DISTINCT nullif(%[1]s, '')), "+
			"sum(%[1]s IS NULL OR %[1]s = ''), "+
			"(SELECT typeof(%[1]s) FROM %[2]s WHERE %[3]s LIMIT 1) FROM %[2]s", c, q, present))
	if err != nil {
		return nil, err
	}
	r := row[0]
	out := &Column{Name: col, Min: display(r[0]), Max: display(r[1])}
	out.Distinct, _ = dblite.ToInt64(r[2])
	out.Empty, _ = dblite.ToInt64(r[3])
	out.Type, _ = dblite.ToString(r[4])

	if out.Distinct == 0 {
		return out, nil
	}
	switch out.Type {
	case "integer":
		out.Type = TypeInt
	case "real":
		n, err := db.Int(fmt.Sprintf("SELECT count(*) FROM %s WHERE %s AND %s != round(%s)", q, present, c, c))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			out.Type = TypeIntegralReal
		}
	case "text":
		n, err := db.Int(fmt.Sprintf("SELECT count(*) FROM %s WHERE %s AND (%s NOT GLOB '[0-9]*' OR %s GLOB '*[^0-9]*')", q, present, c, c))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			out.Type = TypeDigits
		}
	}
	return out, nil
}

// display turns a SQLite value into something every output format shows
// the same way: integral reals become integers and blobs hex literals.
func display(v any) any {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
	case []byte:
		return dblite.QuoteLiteral(x)
	}
	return v
}
