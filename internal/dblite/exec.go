package dblite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

// Begin opens an explicit transaction, ending the current one first.
func (db *DB) Begin() error {
	if err := db.Commit(); err != nil {
		return err
	}
	return db.begin()
}

func (db *DB) begin() error {
	if db.inTx {
		return nil
	}
	if _, err := db.conn.ExecContext(context.Background(), "BEGIN TRANSACTION"); err != nil {
		return dberrors.NewSQLError("BEGIN TRANSACTION", err)
	}
	db.inTx = true
	return nil
}

// Commit ends the open transaction, if any.
func (db *DB) Commit() error {
	if !db.inTx {
		return nil
	}
	db.inTx = false
	if _, err := db.conn.ExecContext(context.Background(), "COMMIT"); err != nil {
		return dberrors.NewSQLError("COMMIT", err)
	}
	return nil
}

// Execute commits pending work, runs one statement and clears the metadata cache.
func (db *DB) Execute(query string) error {
	defer db.ClearCache()
	if err := db.Commit(); err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(context.Background(), db.callSQL(query)); err != nil {
		return dberrors.NewSQLError(query, err)
	}
	return nil
}

// ExecuteScript runs several ';' separated statements. A transaction left
// open by the script is committed, or rolled back when the script fails.
func (db *DB) ExecuteScript(script string) error {
	defer db.ClearCache()
	if err := db.Commit(); err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(context.Background(), db.callSQL(script)); err != nil {
		// a script that failed after its own BEGIN would leave the connection in a transaction
		_, _ = db.conn.ExecContext(context.Background(), "ROLLBACK")
		return dberrors.NewSQLError(script, err)
	}
	if _, err := db.conn.ExecContext(context.Background(), "COMMIT"); err != nil && !noActiveTransaction(err) {
		return dberrors.NewSQLError("COMMIT", err)
	}
	return nil
}

func noActiveTransaction(err error) bool {
	return strings.Contains(err.Error(), "no transaction is active")
}

// Insert adds one row to table. Keys that are not columns of table are
// dropped (case-insensitive) and nil values are skipped so column defaults apply.
func (db *DB) Insert(table string, row map[string]any) error {
	return db.InsertOr(table, "", row)
}

// InsertOr is Insert with an ON CONFLICT strategy such as "replace" or "ignore".
func (db *DB) InsertOr(table, conflict string, row map[string]any) error {
	cols, vals, err := db.sanitizeRow(table, row, true, true)
	if err != nil {
		return err
	}

	verb := "INSERT"
	if conflict = strings.TrimSpace(conflict); conflict != "" {
		verb = "INSERT OR " + strings.ToUpper(conflict)
	}

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
		marks[i] = "?"
	}
	query := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	return db.runModify(query, vals...)
}

// Update sets values on the rows of table matching where. A nil value in
// values sets the column to NULL; a nil value in where matches IS NULL.
// Strings in where are compared as given, without trimming or the empty
// string policy. An empty where updates every row.
func (db *DB) Update(table string, where, values map[string]any) error {
	cols, vals, err := db.sanitizeRow(table, values, false, true)
	if err != nil {
		return err
	}

	set := make([]string, len(cols))
	for i, c := range cols {
		set[i] = QuoteIdent(c) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s", QuoteIdent(table), strings.Join(set, ", "))

	if len(where) > 0 {
		wcols, wvals, err := db.sanitizeRow(table, where, false, false)
		if err != nil {
			return err
		}
		conds := make([]string, 0, len(wcols))
		for i, c := range wcols {
			if wvals[i] == nil {
				conds = append(conds, QuoteIdent(c)+" IS NULL")
				continue
			}
			conds = append(conds, QuoteIdent(c)+" = ?")
			vals = append(vals, wvals[i])
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	return db.runModify(query, vals...)
}

// runModify executes a parameterized mutation inside the batch transaction.
func (db *DB) runModify(query string, args ...any) error {
	if err := db.begin(); err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(context.Background(), query, args...); err != nil {
		return dberrors.NewSQLError(FormatSQL(query, args...), err)
	}
	db.changes++
	if db.opts.commitEvery > 0 && db.changes%db.opts.commitEvery == 0 {
		slog.Debug("committing batch", "path", db.path, "changes", db.changes)
		return db.Commit()
	}
	return nil
}

// sanitizeRow matches row keys against the real columns of table and, with
// policy set, applies the string policy. Columns come back in table order.
func (db *DB) sanitizeRow(table string, row map[string]any, skipNull, policy bool) ([]string, []any, error) {
	columns, err := db.Columns(table)
	if err != nil {
		return nil, nil, err
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var cols []string
	var vals []any
	for _, col := range columns {
		for _, k := range keys {
			if !strings.EqualFold(k, col) {
				continue
			}
			v := row[k]
			if s, ok := v.(string); ok && policy {
				if db.opts.trimStrings {
					s = strings.TrimSpace(s)
				}
				if db.opts.emptyIsNull && s == "" {
					v = nil
				} else {
					v = s
				}
			}
			if !(skipNull && v == nil) {
				cols = append(cols, col)
				vals = append(vals, v)
			}
			break
		}
	}

	if len(cols) == 0 {
		return nil, nil, dberrors.NewEmptyRowError(table, keys, columns)
	}
	return cols, vals, nil
}

// QuoteIdent quotes a SQL identifier with double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral renders v as a SQL literal. It is only meant for
// diagnostics and generated scripts, never for executing user input.
func QuoteLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case []byte:
		return fmt.Sprintf("X'%X'", x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}

// FormatSQL inlines args into the ? placeholders of query for error messages.
func FormatSQL(query string, args ...any) string {
	var sb strings.Builder
	i := 0
	for _, r := range query {
		if r == '?' && i < len(args) {
			sb.WriteString(QuoteLiteral(args[i]))
			i++
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
