package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

// DefaultBatchSize is the number of rows handed to the store at once.
const DefaultBatchSize = 5000

// TransplantOptions configures Transplant.
type TransplantOptions struct {
	// Schema is the target schema; "" for the store default.
	Schema string
	// Drop replaces tables that already exist.
	Drop bool
	// Tables restricts the copy; empty copies every table.
	Tables    []string
	BatchSize int
}

// TableResult reports one copied table.
type TableResult struct {
	Table string
	Rows  int64
}

// Transplant copies the tables of src into store, which must be connected.
func Transplant(ctx context.Context, src *dblite.DB, store Store, opts TransplantOptions) ([]TableResult, error) {
	tables, err := src.Tables()
	if err != nil {
		return nil, err
	}
	if len(opts.Tables) > 0 {
		for _, t := range opts.Tables {
			if !slices.Contains(tables, t) {
				return nil, dberrors.NewInvalidConfigurationErrorf("table %s not found in %s", t, src.Path())
			}
		}
		tables = opts.Tables
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var results []TableResult
	for _, name := range tables {
		def, err := ReadTable(src, name, opts.Schema)
		if err != nil {
			return results, err
		}
		n, err := copyTable(ctx, src, store, def, opts.Drop, batchSize)
		if err != nil {
			return results, err
		}
		slog.Info("Table copied", "table", name, "rows", n)
		results = append(results, TableResult{Table: name, Rows: n})
	}
	return results, nil
}

func copyTable(ctx context.Context, src *dblite.DB, store Store, def *TableDef, drop bool, batchSize int) (int64, error) {
	if err := store.CreateTable(ctx, def, drop); err != nil {
		return 0, err
	}

	columns := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		// unary plus skips the date conversion some drivers apply by declared type
		columns[i] = "+" + dblite.QuoteIdent(c.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), dblite.QuoteIdent(def.Name))

	var total int64
	batch := make([][]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := store.BatchInsert(ctx, def, batch)
		total += n
		batch = batch[:0]
		return err
	}

	for row, err := range src.Select(query) {
		if err != nil {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch = append(batch, row)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
			slog.Debug("batch copied", "table", def.Name, "rows", total)
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
