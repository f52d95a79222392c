package dblite

import (
	"fmt"
	"log/slog"
)

// ForeignKeyViolation is a distinct (table, parent) pair reported by
// PRAGMA foreign_key_check.
type ForeignKeyViolation struct {
	Table  string
	Parent string
}

// IntegrityCheck returns the first line of PRAGMA integrity_check ("ok" when sound).
func (db *DB) IntegrityCheck() (string, error) {
	v, err := db.Scalar("PRAGMA integrity_check")
	if err != nil {
		return "", err
	}
	s, _ := ToString(v)
	return s, nil
}

// ForeignKeyCheck returns the distinct table/parent pairs violating foreign keys.
func (db *DB) ForeignKeyCheck() ([]ForeignKeyViolation, error) {
	var out []ForeignKeyViolation
	seen := make(map[ForeignKeyViolation]bool)
	for row, err := range db.Select("PRAGMA foreign_key_check") {
		if err != nil {
			return nil, err
		}
		table, _ := ToString(row[0])
		parent, _ := ToString(row[2])
		v := ForeignKeyViolation{Table: table, Parent: parent}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

// Validate logs integrity and foreign key checks. Problems are reported,
// never returned: existing data may already break constraints.
func (db *DB) Validate() {
	ic, err := db.IntegrityCheck()
	if err != nil {
		slog.Warn("integrity_check failed to run", "path", db.path, "error", err)
	} else {
		if ic == "" {
			ic = "?"
		}
		slog.Info("integrity_check", "path", db.path, "result", ic)
	}

	fkc, err := db.ForeignKeyCheck()
	if err != nil {
		slog.Warn("foreign_key_check failed to run", "path", db.path, "error", err)
		return
	}
	if len(fkc) == 0 {
		slog.Info("foreign_key_check", "path", db.path, "result", "ok")
		return
	}
	slog.Info("foreign_key_check", "path", db.path, "result", "ko")
	for _, v := range fkc {
		slog.Warn("foreign key violation", "table", v.Table, "parent", v.Parent)
	}
}

// Close releases the database. On a writable database it commits, and
// with vacuum set it also validates and compacts the file first.
// Calling Close more than once is a no-op.
func (db *DB) Close(vacuum bool) error {
	if db.closed {
		return nil
	}
	db.closed = true

	if db.readOnly {
		return db.release()
	}

	if err := db.Commit(); err != nil {
		_ = db.release()
		return err
	}
	if vacuum {
		db.Validate()
		if err := db.Execute("VACUUM"); err != nil {
			_ = db.release()
			return fmt.Errorf("failed to vacuum %s: %w", db.path, err)
		}
	}
	return db.release()
}
