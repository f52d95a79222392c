package dblite

import (
	"fmt"
	"log/slog"

	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

// Backup copies the whole database, page by page, into target. Whatever
// target held before is replaced. Pending work on both sides is committed first.
func (db *DB) Backup(target *DB) error {
	if target.readOnly {
		return dberrors.NewInvalidConfigurationErrorf("cannot back up into read-only database %s", target.path)
	}
	if err := db.Commit(); err != nil {
		return err
	}
	if err := target.Commit(); err != nil {
		return err
	}

	slog.Debug("backup", "from", db.path, "to", target.path)
	defer target.ClearCache()
	if err := target.restoreFrom(db); err != nil {
		return fmt.Errorf("failed to back up %s into %s: %w", db.path, target.path, err)
	}
	return nil
}

// BackupFile copies the database into the file at path.
func (db *DB) BackupFile(path string) error {
	if path == "" || path == Memory {
		return dberrors.NewInvalidConfigurationErrorf("backup target must be a file, got %q", path)
	}
	target, err := Open(path, WithCommitEvery(db.opts.commitEvery))
	if err != nil {
		return err
	}
	if err := db.Backup(target); err != nil {
		_ = target.Close(false)
		return err
	}
	return target.Close(false)
}

// Merge replays the dump of db into target, so target keeps its own tables
// and gains those of db. A table present on both sides makes the script fail.
func (db *DB) Merge(target *DB, maxWidth, maxRows int) error {
	if err := db.Commit(); err != nil {
		return err
	}
	script, err := db.DumpScript(maxWidth, maxRows)
	if err != nil {
		return fmt.Errorf("failed to dump %s: %w", db.path, err)
	}
	slog.Debug("merge", "from", db.path, "to", target.path, "bytes", len(script))
	return target.ExecuteScript(script)
}
