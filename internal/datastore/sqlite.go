package datastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

// SQLiteStore implements the Store interface for a SQLite file. Tables keep
// their SQLite declared types.
type SQLiteStore struct {
	db     *dblite.DB
	dbPath string
	opts   []dblite.Option
}

// NewSQLiteStore creates a new SQLiteStore instance. Values are stored
// as given: strings are neither trimmed nor turned into NULL.
func NewSQLiteStore(dbPath string, opts ...dblite.Option) *SQLiteStore {
	return &SQLiteStore{
		dbPath: dbPath,
		opts:   append([]dblite.Option{dblite.WithTrimStrings(false), dblite.WithEmptyIsNull(false)}, opts...),
	}
}

// Connect opens (or creates) the SQLite database
func (s *SQLiteStore) Connect(_ context.Context) error {
	db, err := dblite.Open(s.dbPath, s.opts...)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	return nil
}

// DB exposes the underlying database
func (s *SQLiteStore) DB() *dblite.DB {
	return s.db
}

func (s *SQLiteStore) createSQL(table *TableDef) string {
	defs := make([]string, 0, len(table.Columns)+1)
	var keys []string
	for _, c := range table.Columns {
		def := strings.TrimSpace(dblite.QuoteIdent(c.Name) + " " + c.Declared)
		if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	for _, k := range table.primaryKey() {
		keys = append(keys, dblite.QuoteIdent(k))
	}
	if len(keys) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", dblite.QuoteIdent(table.Name), strings.Join(defs, ", "))
}

// CreateTable creates table, dropping an existing one first when drop is set
func (s *SQLiteStore) CreateTable(_ context.Context, table *TableDef, drop bool) error {
	if drop {
		if err := s.db.Execute("DROP TABLE IF EXISTS " + dblite.QuoteIdent(table.Name)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table.Name, err)
		}
	}
	if err := s.db.Execute(s.createSQL(table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.Name, err)
	}
	return nil
}

// BatchInsert inserts rows and commits them
func (s *SQLiteStore) BatchInsert(ctx context.Context, table *TableDef, rows [][]any) (int64, error) {
	columns := table.ColumnNames()
	var n int64
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		record := make(map[string]any, len(columns))
		for i, c := range columns {
			record[c] = row[i]
		}
		err := s.db.Insert(table.Name, record)
		if dberrors.IsEmptyRowError(err) {
			err = s.db.Execute("INSERT INTO " + dblite.QuoteIdent(table.Name) + " DEFAULT VALUES")
		}
		if err != nil {
			return n, fmt.Errorf("failed to insert record: %w", err)
		}
		n++
	}
	if err := s.db.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close(false)
	}
	return nil
}
