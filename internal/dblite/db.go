// Package dblite is a thin access layer over a single SQLite database.
//
// A DB pins one connection for its whole life, caches schema metadata until
// the next Execute/ExecuteScript, commits inserts and updates in batches and
// lets callers inject scalar and aggregate functions reachable from SQL.
//
// Build modes mirror the engine in use:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - -tags cgo_sqlite: github.com/mattn/go-sqlite3, which also supports
//     loading native extensions
//
// A DB is not safe for concurrent use.
package dblite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/fileutil"
)

// Memory opens a transient in-memory database.
const Memory = ":memory:"

// DefaultCommitEvery is the number of inserts/updates between forced commits.
const DefaultCommitEvery = 1000

// DB owns one connection to a SQLite database file or in-memory store.
type DB struct {
	path     string
	uri      string
	readOnly bool
	opts     options

	pool *sql.DB
	conn *sql.Conn

	inTx    bool
	changes int
	cache   *schemaCache
	closed  bool

	// engine specific bookkeeping, see engine_*.go
	gen       uint64
	owner     uint64
	funcNames map[string]string
}

type options struct {
	readOnly    bool
	extensions  []string
	trimStrings bool
	emptyIsNull bool
	commitEvery int
}

// Option configures Open.
type Option func(*options)

// WithReadOnly opens the database without write access. The engine enforces it.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithExtensions loads native extension modules before first use.
func WithExtensions(paths ...string) Option {
	return func(o *options) {
		o.extensions = append(o.extensions, paths...)
	}
}

// WithTrimStrings controls whether string values are trimmed by Insert/Update.
func WithTrimStrings(v bool) Option {
	return func(o *options) {
		o.trimStrings = v
	}
}

// WithEmptyIsNull controls whether empty strings are stored as NULL by Insert/Update.
func WithEmptyIsNull(v bool) Option {
	return func(o *options) {
		o.emptyIsNull = v
	}
}

// WithCommitEvery sets how many inserts/updates run between commits.
// A negative value only commits on Commit, Execute and Close.
func WithCommitEvery(n int) Option {
	return func(o *options) {
		o.commitEvery = n
	}
}

// Open opens path (or Memory) and pins a connection to it.
func Open(path string, opts ...Option) (*DB, error) {
	o := options{
		trimStrings: true,
		emptyIsNull: true,
		commitEvery: DefaultCommitEvery,
	}
	for _, opt := range opts {
		opt(&o)
	}

	memory := path == "" || path == Memory
	if memory {
		path = Memory
	}
	if o.readOnly {
		if memory {
			return nil, dberrors.NewInvalidConfigurationErrorf("%s and read-only doesn't make sense", Memory)
		}
		if !fileutil.FileExists(path) {
			return nil, dberrors.NewNotFoundError(path)
		}
	}

	uri := buildURI(path, memory, o.readOnly)

	slog.Info("sqlite", "path", path, "engine", driverType, "readonly", o.readOnly)

	pool, err := openPool(uri, o.extensions)
	if err != nil {
		return nil, err
	}
	// The pinned connection is the only one that should stay open.
	pool.SetMaxIdleConns(0)

	conn, err := pool.Conn(context.Background())
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	db := &DB{
		path:     path,
		uri:      uri,
		readOnly: o.readOnly,
		opts:     o,
		pool:     pool,
		conn:     conn,
		cache:    newSchemaCache(),
	}
	db.attach()

	// Force the engine to actually open the file so errors surface here.
	if err := conn.PingContext(context.Background()); err != nil {
		_ = db.release()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	return db, nil
}

// buildURI returns a DSN both engines understand. In-memory stores get a
// unique shared-cache name so backups and reconnects reach the same data.
func buildURI(path string, memory, readOnly bool) string {
	if memory {
		return "file:memdb-" + uuid.NewString() + "?mode=memory&cache=shared"
	}
	if readOnly {
		return "file:" + escapeURIPath(path) + "?mode=ro"
	}
	return path
}

var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func escapeURIPath(path string) string {
	return uriPathEscaper.Replace(path)
}

// Path returns the path the database was opened with, or Memory.
func (db *DB) Path() string {
	return db.path
}

// ReadOnly reports whether the database was opened read-only.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}

// Engine identifies the SQLite implementation compiled in ("purego" or "cgo").
func Engine() string {
	return driverType
}

// reconnect swaps the pinned connection for a fresh one from the pool and
// discards the old one. The new connection is opened first so in-memory
// stores stay alive.
func (db *DB) reconnect() error {
	if err := db.Commit(); err != nil {
		return err
	}
	next, err := db.pool.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to reconnect to %s: %w", db.path, err)
	}
	old := db.conn
	db.conn = next
	db.attach()
	discard(old)
	return nil
}

func (db *DB) release() error {
	db.detach()
	var errs []error
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		db.conn = nil
	}
	if db.pool != nil {
		if err := db.pool.Close(); err != nil {
			errs = append(errs, err)
		}
		db.pool = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close %s: %v", db.path, errs)
	}
	return nil
}
