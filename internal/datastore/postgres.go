package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

// PostgresStore implements the Store interface on a PostgreSQL pool
type PostgresStore struct {
	pool     *pgxpool.Pool
	url      string
	maxConns int32
}

// NewPostgresStore creates a new PostgresStore for a connection URL
func NewPostgresStore(databaseURL string) *PostgresStore {
	return &PostgresStore{url: databaseURL, maxConns: 4}
}

// Connect parses the URL, opens the pool and checks the server answers
func (s *PostgresStore) Connect(ctx context.Context) error {
	if s.url == "" {
		return dberrors.NewInvalidConfigurationError("no PostgreSQL URL configured (postgres.url)")
	}
	cfg, err := pgxpool.ParseConfig(s.url)
	if err != nil {
		return dberrors.NewInvalidConfigurationErrorf("invalid PostgreSQL URL: %v", err)
	}
	cfg.MaxConns = s.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	s.pool = pool

	if u, err := url.Parse(s.url); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"), "host", u.Hostname())
	} else {
		slog.Info("connected to database")
	}
	return nil
}

// CreateTable creates table inside one transaction, dropping it first when asked
func (s *PostgresStore) CreateTable(ctx context.Context, table *TableDef, drop bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if drop {
		if _, err := tx.Exec(ctx, table.DropSQL()); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table.Name, err)
		}
	}
	if _, err := tx.Exec(ctx, table.CreateSQL()); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// BatchInsert streams rows with the COPY protocol
func (s *PostgresStore) BatchInsert(ctx context.Context, table *TableDef, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	converted := make([][]any, len(rows))
	for i, row := range rows {
		out := make([]any, len(row))
		for j, v := range row {
			c, err := Convert(table.Columns[j].Type, v)
			if err != nil {
				return 0, fmt.Errorf("%s.%s: %w", table.Name, table.Columns[j].Name, err)
			}
			out[j] = c
		}
		converted[i] = out
	}
	n, err := s.pool.CopyFrom(ctx, table.Identifier(), table.ColumnNames(), pgx.CopyFromRows(converted))
	if err != nil {
		return n, fmt.Errorf("failed to copy rows into %s: %w", table.Name, err)
	}
	return n, nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
