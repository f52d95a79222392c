//go:build !cgo_sqlite

package dblite

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"

	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"modernc.org/sqlite"
)

const (
	driverName = "sqlite"
	driverType = "purego"
)

// modernc.org/sqlite registers application functions for the whole process
// and only for connections opened afterwards. Each DB binds its
// functions under names of its own ("name__<owner>") to a trampoline that
// dispatches to the latest implementation; callSQL rewrites calls in the
// statements the DB runs. A DB whose connection predates a binding
// reconnects.
var registry = struct {
	sync.Mutex
	owners uint64
	gen    uint64
	funcs  map[string]*registered
}{funcs: make(map[string]*registered)}

type registered struct {
	arity     int
	aggregate bool
	gen       uint64
	scalar    Func
	reduce    Reducer
}

func openPool(dsn string, extensions []string) (*sql.DB, error) {
	if len(extensions) > 0 {
		return nil, dberrors.NewInvalidConfigurationError("loading extensions requires a build with -tags cgo_sqlite")
	}
	pool, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return pool, nil
}

// attach records which registered functions the pinned connection can see.
func (db *DB) attach() {
	registry.Lock()
	db.gen = registry.gen
	registry.Unlock()
}

func (db *DB) registerScalar(name string, arity int, fn Func) error {
	return db.register(name, registered{arity: arity, scalar: fn})
}

func (db *DB) registerAggregate(name string, fn Reducer) error {
	return db.register(name, registered{arity: 1, aggregate: true, reduce: fn})
}

func (db *DB) register(name string, r registered) error {
	key := strings.ToLower(name)

	registry.Lock()
	if bound, ok := db.funcNames[key]; ok {
		cur := registry.funcs[bound]
		if cur.arity != r.arity || cur.aggregate != r.aggregate {
			registry.Unlock()
			return dberrors.NewInvalidConfigurationErrorf("%s is already registered with a different signature", name)
		}
		cur.scalar, cur.reduce = r.scalar, r.reduce
		visible := db.gen >= cur.gen
		registry.Unlock()
		if visible {
			return nil
		}
		return db.reconnect()
	}

	if db.owner == 0 {
		registry.owners++
		db.owner = registry.owners
	}
	bound := fmt.Sprintf("%s__%d", key, db.owner)

	impl := &sqlite.FunctionImpl{NArgs: int32(r.arity), Deterministic: true}
	if r.aggregate {
		impl.MakeAggregate = func(sqlite.FunctionContext) (sqlite.AggregateFunction, error) {
			f, err := lookup(bound, name)
			if err != nil {
				return nil, err
			}
			return &aggregate{c: newCollector(f.reduce)}, nil
		}
	} else {
		impl.Scalar = func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			f, err := lookup(bound, name)
			if err != nil {
				return nil, err
			}
			in := make([]any, len(args))
			for i, a := range args {
				in[i] = a
			}
			return callScalar(f.scalar, in)
		}
	}
	if err := sqlite.RegisterFunction(bound, impl); err != nil {
		registry.Unlock()
		return err
	}
	registry.gen++
	r.gen = registry.gen
	registry.funcs[bound] = &r
	if db.funcNames == nil {
		db.funcNames = make(map[string]string)
	}
	db.funcNames[key] = bound
	registry.Unlock()

	return db.reconnect()
}

func lookup(bound, name string) (registered, error) {
	registry.Lock()
	defer registry.Unlock()
	f, ok := registry.funcs[bound]
	if !ok {
		return registered{}, fmt.Errorf("function %s belongs to a closed database", name)
	}
	return *f, nil
}

// detach drops the implementations of db's functions. The engine keeps the
// bindings, which now fail when called.
func (db *DB) detach() {
	registry.Lock()
	defer registry.Unlock()
	for _, bound := range db.funcNames {
		delete(registry.funcs, bound)
	}
}

type aggregate struct {
	c *collector
}

func (a *aggregate) Step(_ *sqlite.FunctionContext, args []driver.Value) error {
	a.c.step(args[0])
	return nil
}

func (a *aggregate) WindowInverse(*sqlite.FunctionContext, []driver.Value) error {
	return errors.New("aggregate cannot be used as a window function")
}

func (a *aggregate) WindowValue(*sqlite.FunctionContext) (driver.Value, error) {
	return a.c.done()
}

func (a *aggregate) Final(*sqlite.FunctionContext) {}

type restorer interface {
	NewRestore(srcURI string) (*sqlite.Backup, error)
}

// restoreFrom overwrites db with a page level copy of src.
func (db *DB) restoreFrom(src *DB) error {
	return db.conn.Raw(func(driverConn any) error {
		r, ok := driverConn.(restorer)
		if !ok {
			return fmt.Errorf("driver connection %T does not support backups", driverConn)
		}
		b, err := r.NewRestore(src.uri)
		if err != nil {
			return err
		}
		for {
			more, err := b.Step(-1)
			if err != nil {
				return errors.Join(err, b.Finish())
			}
			if !more {
				break
			}
		}
		return b.Finish()
	})
}
