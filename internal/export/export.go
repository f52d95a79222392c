// Package export runs saved queries against a database and stores each
// result as CSV, JSON and an Excel workbook next to the query file.
package export

import (
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/lepinkainen/dbtools/internal/csvutil"
	"github.com/lepinkainen/dbtools/internal/dblite"
	"github.com/lepinkainen/dbtools/internal/fileutil"
)

// Result is the outcome of one query file.
type Result struct {
	Query   string
	CSV     string
	JSON    string
	XLSX    string
	Rows    int
	Skipped bool
}

// Queries lists the *.sql files under dir in path order. Files whose name
// starts with '_' are helpers and are left out.
func Queries(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), "_") || fileutil.Ext(path) != "sql" {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	slices.Sort(out)
	return out, nil
}

// Run exports every query under dir. Existing outputs are kept unless
// overwrite is set.
func Run(db *dblite.DB, dir string, overwrite bool) ([]Result, error) {
	queries, err := Queries(dir)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(queries))
	for _, q := range queries {
		r, err := File(db, q, overwrite)
		if err != nil {
			return results, err
		}
		results = append(results, *r)
	}
	return results, nil
}

// File exports the query at path. Every statement but the last is run as a
// script (to create temporary views or tables); the last one is the query
// whose rows are written.
func File(db *dblite.DB, path string, overwrite bool) (*Result, error) {
	name := fileutil.TrimExt(path)
	r := &Result{Query: path, CSV: name + ".csv", JSON: name + ".json", XLSX: name + ".xlsx"}

	if !overwrite && fileutil.FileExists(r.CSV) && fileutil.FileExists(r.JSON) && fileutil.FileExists(r.XLSX) {
		slog.Info("Outputs already exist, skipping", "query", path)
		r.Skipped = true
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	statements := SplitStatements(string(data))
	if len(statements) == 0 {
		return nil, fmt.Errorf("%s has no statements", path)
	}
	if setup := statements[:len(statements)-1]; len(setup) > 0 {
		if err := db.ExecuteScript(strings.Join(setup, ";\n") + ";"); err != nil {
			return nil, err
		}
	}

	columns, rows, err := db.Query(statements[len(statements)-1])
	if err != nil {
		return nil, err
	}
	integralColumns(rows, len(columns))

	slog.Info("Exporting query", "query", path, "rows", len(rows))
	if err := csvutil.WriteFile(r.CSV, columns, textRows(rows)); err != nil {
		return nil, err
	}
	if _, err := fileutil.WriteJSONFile(records(columns, rows), r.JSON, true); err != nil {
		return nil, err
	}
	if err := writeXLSX(r.XLSX, fileutil.BaseName(path), columns, rows); err != nil {
		return nil, err
	}
	r.Rows = len(rows)
	return r, nil
}

// integralColumns turns every real column whose values are all integral
// into an integer column.
func integralColumns(rows []dblite.Row, width int) {
	for col := range width {
		integral := true
		for _, row := range rows {
			if f, ok := row[col].(float64); ok && (f != math.Trunc(f) || math.Abs(f) >= 1<<53) {
				integral = false
				break
			}
		}
		if !integral {
			continue
		}
		for _, row := range rows {
			if f, ok := row[col].(float64); ok {
				row[col] = int64(f)
			}
		}
	}
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return dblite.QuoteLiteral(x)
	case time.Time:
		if x.Equal(x.Truncate(24 * time.Hour)) {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.DateTime)
	}
	s, _ := dblite.ToString(v)
	return s
}

func textRows(rows []dblite.Row) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = text(v)
		}
	}
	return out
}

func records(columns []string, rows []dblite.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		rec := make(map[string]any, len(columns))
		for j, c := range columns {
			switch v := row[j].(type) {
			case []byte, time.Time:
				rec[c] = text(v)
			default:
				rec[c] = v
			}
		}
		out[i] = rec
	}
	return out
}
