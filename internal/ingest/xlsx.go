package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/dbtools/internal/csvutil"
	"github.com/lepinkainen/dbtools/internal/dblite"
	"github.com/lepinkainen/dbtools/internal/fileutil"
	"github.com/lepinkainen/dbtools/internal/normalize"
	"github.com/xuri/excelize/v2"
)

// openXLSX loads every worksheet that has a header into its own table.
// The first sheet is named after the file, the others after the file and
// the sheet. Header detection matches CSV: leading blank rows are skipped.
func openXLSX(ctx context.Context, path string, opts Options) (*dblite.DB, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer func() { _ = book.Close() }()

	mem, err := newMemory(opts)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*dblite.DB, error) {
		_ = mem.Close(false)
		return nil, err
	}

	base := fileutil.BaseName(path)
	loaded := 0
	for i, sheet := range book.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		name := base
		if i > 0 {
			name = base + "_" + sheet
		}
		loader := &tableLoader{db: mem, table: normalize.TableName(name)}
		if err := loadSheet(book, sheet, loader); err != nil {
			return fail(fmt.Errorf("sheet %s of %s: %w", sheet, path, err))
		}
		if loader.columns == nil {
			slog.Debug("skipping empty sheet", "file", path, "sheet", sheet)
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return fail(fmt.Errorf("workbook %s has no data", path))
	}
	if err := mem.Commit(); err != nil {
		return fail(err)
	}
	return mem, nil
}

func loadSheet(book *excelize.File, sheet string, loader *tableLoader) error {
	rows, err := book.Rows(sheet)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for line := 1; rows.Next(); line++ {
		record, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("row %d: %w", line, err)
		}
		if csvutil.Blank(record) {
			continue
		}
		if loader.columns == nil {
			if err := loader.header(record); err != nil {
				return err
			}
			continue
		}
		if err := loader.record(record); err != nil {
			return fmt.Errorf("row %d: %w", line, err)
		}
	}
	return rows.Error()
}
