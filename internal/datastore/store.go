// Package datastore copies the tables of a SQLite database into another
// store, PostgreSQL or SQLite.
package datastore

import "context"

// Store receives tables copied out of a SQLite database
type Store interface {
	// Connect establishes a connection to the data store
	Connect(ctx context.Context) error

	// CreateTable creates table, dropping an existing one first when drop is set
	CreateTable(ctx context.Context, table *TableDef, drop bool) error

	// BatchInsert appends rows (in table column order) and returns how many were stored
	BatchInsert(ctx context.Context, table *TableDef, rows [][]any) (int64, error)

	// Close closes the connection to the data store
	Close() error
}
