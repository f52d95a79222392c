// Package transplant copies the tables of a SQLite file into another
// database engine.
package transplant

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lepinkainen/dbtools/internal/datastore"
	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/fileutil"
)

// Params holds the parameters of one transplant
type Params struct {
	Input string
	// To is a postgres:// URL or the path of a SQLite file
	To        string
	Schema    string
	Drop      bool
	Tables    []string
	BatchSize int
	DB        []dblite.Option
}

// newStore picks the store for a target, replaceable in tests
var newStore = NewStore

// NewStore returns the store a target string refers to
func NewStore(to string, opts ...dblite.Option) (datastore.Store, error) {
	switch {
	case to == "":
		return nil, dberrors.NewInvalidConfigurationError("no transplant target (--to or postgres.url)")
	case strings.HasPrefix(to, "postgres://"), strings.HasPrefix(to, "postgresql://"):
		return datastore.NewPostgresStore(to), nil
	}
	switch fileutil.Ext(to) {
	case "sqlite", "sqlite3", "db":
		return datastore.NewSQLiteStore(to, opts...), nil
	}
	return nil, dberrors.NewInvalidConfigurationErrorf("unsupported transplant target %q", to)
}

// Run copies p.Input into p.To
func Run(ctx context.Context, p Params) ([]datastore.TableResult, error) {
	if err := fileutil.RequireFile(p.Input); err != nil {
		return nil, err
	}
	store, err := newStore(p.To, p.DB...)
	if err != nil {
		return nil, err
	}

	src, err := dblite.Open(p.Input, append(p.DB, dblite.WithReadOnly())...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close(false) }()

	if err := store.Connect(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	schema := p.Schema
	if _, ok := store.(*datastore.SQLiteStore); ok {
		schema = ""
	}
	results, err := datastore.Transplant(ctx, src, store, datastore.TransplantOptions{
		Schema:    schema,
		Drop:      p.Drop,
		Tables:    p.Tables,
		BatchSize: p.BatchSize,
	})
	if err != nil {
		return results, err
	}

	var rows int64
	for _, r := range results {
		rows += r.Rows
	}
	slog.Info("transplant finished", "tables", len(results), "rows", rows)
	return results, nil
}
