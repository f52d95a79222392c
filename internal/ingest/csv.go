package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lepinkainen/dbtools/internal/csvutil"
	"github.com/lepinkainen/dbtools/internal/dblite"
	"github.com/lepinkainen/dbtools/internal/fileutil"
	"github.com/lepinkainen/dbtools/internal/normalize"
)

// ColumnNames normalizes a CSV header. Repeated names get a numeric suffix.
func ColumnNames(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		name := normalize.ColumnName(h)
		seen[name]++
		if n := seen[name]; n > 1 {
			for {
				candidate := name + "_" + strconv.Itoa(n)
				if seen[candidate] == 0 {
					name = candidate
					seen[name]++
					break
				}
				n++
			}
		}
		out[i] = name
	}
	return out
}

// tableLoader creates one all-TEXT table from a header row and inserts the
// records that follow it. Blank cells stay NULL and records without any
// value are dropped.
type tableLoader struct {
	db      *dblite.DB
	table   string
	columns []string
}

func (l *tableLoader) header(header []string) error {
	l.columns = ColumnNames(header)
	defs := make([]string, len(l.columns))
	for i, c := range l.columns {
		defs[i] = dblite.QuoteIdent(c) + " TEXT"
	}
	return l.db.Execute(fmt.Sprintf("CREATE TABLE %s (%s)", dblite.QuoteIdent(l.table), strings.Join(defs, ", ")))
}

func (l *tableLoader) record(record []string) error {
	row := make(map[string]any, len(l.columns))
	for i, cell := range record {
		if i >= len(l.columns) {
			break
		}
		if strings.TrimSpace(cell) != "" {
			row[l.columns[i]] = cell
		}
	}
	if len(row) == 0 {
		return nil
	}
	return l.db.Insert(l.table, row)
}

func openCSV(path string, opts Options, comma rune) (*dblite.DB, error) {
	mem, err := newMemory(opts)
	if err != nil {
		return nil, err
	}
	loader := &tableLoader{db: mem, table: normalize.TableName(fileutil.BaseName(path))}

	csvOpts := opts.CSV
	csvOpts.Comma = comma

	_, err = csvutil.ProcessCSV(path, csvOpts, loader.header, loader.record)
	if err == nil {
		err = mem.Commit()
	}
	if err != nil {
		_ = mem.Close(false)
		return nil, err
	}
	return mem, nil
}
