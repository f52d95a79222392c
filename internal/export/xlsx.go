package export

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lepinkainen/dbtools/internal/dblite"
	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

var sheetNameReplacer = strings.NewReplacer(":", "_", `\`, "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")

// sheetName makes name acceptable as a worksheet name.
func sheetName(name string) string {
	name = strings.Trim(sheetNameReplacer.Replace(name), "'")
	for utf8.RuneCountInString(name) > maxSheetName {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	if name == "" {
		return "Sheet1"
	}
	return name
}

// writeXLSX stores the result as the only sheet of a workbook. The header
// row is bold and stays in view while scrolling.
func writeXLSX(path, sheet string, columns []string, rows []dblite.Row) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet = sheetName(sheet)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet %s: %w", sheet, err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	if err := sw.SetPanes(&excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{StyleID: bold}); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = cellValue(v)
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, path, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func cellValue(v any) any {
	switch v.(type) {
	case []byte, time.Time:
		return text(v)
	}
	return v
}
