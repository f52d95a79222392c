package dblite

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strings"
)

// NoLimit disables a DumpStatements batching criterion.
const NoLimit = -1

type schemaEntry struct {
	name string
	kind string
	sql  string
}

// DumpStatements streams a script that rebuilds the database: tables, their
// rows, then indexes, triggers and views, wrapped in one transaction with
// foreign keys off.
//
// Rows of one table are coalesced into multi-row INSERT statements. A new
// statement starts when maxRows rows were written or when adding a row would
// push the values past maxWidth bytes. NoLimit (or any value <= 0) disables
// either criterion; maxRows == 1 writes one plain INSERT per row.
func (db *DB) DumpStatements(maxWidth, maxRows int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries, err := db.schemaEntries()
		if err != nil {
			yield("", err)
			return
		}
		shadow, err := db.shadowTables()
		if err != nil {
			yield("", err)
			return
		}

		if !yield("PRAGMA foreign_keys=OFF;", nil) || !yield("BEGIN TRANSACTION;", nil) {
			return
		}

		var tables []string
		hasSequence := false
		for _, e := range entries {
			if e.kind != "table" {
				continue
			}
			switch {
			case e.name == "sqlite_sequence":
				hasSequence = true
				continue
			case strings.HasPrefix(e.name, "sqlite_"):
				continue
			case shadow[e.name]:
				// recreated by the CREATE VIRTUAL TABLE that owns it
				continue
			}
			if !yield(e.sql+";", nil) {
				return
			}
			tables = append(tables, e.name)
		}

		for _, table := range tables {
			if !db.dumpRows(table, maxWidth, maxRows, yield) {
				return
			}
		}

		if hasSequence {
			if !yield(`DELETE FROM "sqlite_sequence";`, nil) {
				return
			}
			if !db.dumpRows("sqlite_sequence", maxWidth, maxRows, yield) {
				return
			}
		}

		for _, e := range entries {
			if e.kind == "table" {
				continue
			}
			if !yield(e.sql+";", nil) {
				return
			}
		}

		for _, tail := range []string{
			"COMMIT;",
			"VACUUM;",
			"PRAGMA foreign_keys=ON;",
			"pragma integrity_check;",
			"pragma foreign_key_check;",
		} {
			if !yield(tail, nil) {
				return
			}
		}
	}
}

func (db *DB) schemaEntries() ([]schemaEntry, error) {
	rows, err := db.All(`SELECT name, type, sql FROM sqlite_master
		WHERE sql NOT NULL AND type IN ('table', 'index', 'trigger', 'view')
		ORDER BY CASE type WHEN 'table' THEN 0 WHEN 'index' THEN 1 WHEN 'trigger' THEN 2 ELSE 3 END, name`)
	if err != nil {
		return nil, err
	}
	entries := make([]schemaEntry, 0, len(rows))
	for _, r := range rows {
		var e schemaEntry
		e.name, _ = ToString(r[0])
		e.kind, _ = ToString(r[1])
		e.sql, _ = ToString(r[2])
		entries = append(entries, e)
	}
	return entries, nil
}

func (db *DB) shadowTables() (map[string]bool, error) {
	names, err := db.Strings("SELECT name FROM pragma_table_list WHERE type='shadow'")
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

// dumpRows yields the INSERT statements of table. It returns false when the
// consumer stopped or an error was yielded.
func (db *DB) dumpRows(table string, maxWidth, maxRows int, yield func(string, error) bool) bool {
	cols, err := db.Columns(table)
	if err != nil {
		yield("", err)
		return false
	}
	if len(cols) == 0 {
		return true
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = "quote(" + QuoteIdent(c) + ")"
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, " || ',' || "), QuoteIdent(table))
	header := "INSERT INTO " + QuoteIdent(table) + " VALUES"

	var batch []string
	width := 0
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		stmt := header + "\n" + strings.Join(batch, ",\n") + ";"
		batch = batch[:0]
		width = 0
		return yield(stmt, nil)
	}

	for row, err := range db.Select(query) {
		if err != nil {
			yield("", err)
			return false
		}
		values, _ := ToString(row[0])
		tuple := "(" + values + ")"

		if maxRows == 1 {
			if !yield(header+tuple+";", nil) {
				return false
			}
			continue
		}

		added := len(tuple)
		if len(batch) > 0 {
			added++
		}
		if len(batch) > 0 && maxWidth > 0 && width+added > maxWidth {
			if !flush() {
				return false
			}
			added = len(tuple)
		}
		batch = append(batch, tuple)
		width += added

		if maxRows > 0 && len(batch) >= maxRows {
			if !flush() {
				return false
			}
		}
	}
	return flush()
}

// WriteDump writes DumpStatements to w, one statement per line.
func (db *DB) WriteDump(w io.Writer, maxWidth, maxRows int) error {
	bw := bufio.NewWriter(w)
	for stmt, err := range db.DumpStatements(maxWidth, maxRows) {
		if err != nil {
			return err
		}
		if _, err := bw.WriteString(stmt + "\n"); err != nil {
			return fmt.Errorf("failed to write dump: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write dump: %w", err)
	}
	return nil
}

// DumpScript returns the whole dump as one string.
func (db *DB) DumpScript(maxWidth, maxRows int) (string, error) {
	var sb strings.Builder
	if err := db.WriteDump(&sb, maxWidth, maxRows); err != nil {
		return "", err
	}
	return sb.String(), nil
}
