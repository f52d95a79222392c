//go:build cgo_sqlite

package dblite

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

const (
	driverName = "sqlite3"
	driverType = "cgo"
)

// One driver is registered per distinct extension list, since
// go-sqlite3 loads extensions from the driver configuration.
var extDrivers = struct {
	sync.Mutex
	names map[string]string
}{names: make(map[string]string)}

func openPool(dsn string, extensions []string) (*sql.DB, error) {
	name := driverName
	if len(extensions) > 0 {
		key := strings.Join(extensions, "\x00")
		extDrivers.Lock()
		var ok bool
		if name, ok = extDrivers.names[key]; !ok {
			name = fmt.Sprintf("%s_ext_%d", driverName, len(extDrivers.names)+1)
			sql.Register(name, &sqlite3.SQLiteDriver{Extensions: slices.Clone(extensions)})
			extDrivers.names[key] = name
		}
		extDrivers.Unlock()
	}
	pool, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return pool, nil
}

// attach and detach are no-ops: go-sqlite3 registers functions on the
// pinned connection itself, which is never replaced, so names are never
// rewritten either.
func (db *DB) attach() {}

func (db *DB) detach() {}

func (db *DB) withConn(fn func(*sqlite3.SQLiteConn) error) error {
	return db.conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return fn(c)
	})
}

var (
	anyType   = reflect.TypeFor[any]()
	errorType = reflect.TypeFor[error]()
)

// scalarImpl builds a func(any, any, ...) (any, error) with exactly arity
// parameters so go-sqlite3 registers the right argument count.
func scalarImpl(arity int, fn Func) any {
	var in []reflect.Type
	variadic := arity < 0
	if variadic {
		in = []reflect.Type{reflect.SliceOf(anyType)}
	} else {
		in = slices.Repeat([]reflect.Type{anyType}, arity)
	}
	typ := reflect.FuncOf(in, []reflect.Type{anyType, errorType}, variadic)

	return reflect.MakeFunc(typ, func(params []reflect.Value) []reflect.Value {
		var args []any
		if variadic {
			for i := 0; i < params[0].Len(); i++ {
				args = append(args, nullable(params[0].Index(i).Interface()))
			}
		} else {
			for _, p := range params {
				args = append(args, nullable(p.Interface()))
			}
		}
		out, err := callScalar(fn, args)
		return []reflect.Value{reflect.ValueOf(&out).Elem(), reflect.ValueOf(&err).Elem()}
	}).Interface()
}

// nullable undoes go-sqlite3 passing NULL as a nil []byte.
func nullable(v any) any {
	if b, ok := v.([]byte); ok && b == nil {
		return nil
	}
	return v
}

func (db *DB) registerScalar(name string, arity int, fn Func) error {
	impl := scalarImpl(arity, fn)
	return db.withConn(func(c *sqlite3.SQLiteConn) error {
		return c.RegisterFunc(name, impl, true)
	})
}

type cgoAggregate struct {
	c *collector
}

func (a *cgoAggregate) Step(v any) {
	a.c.step(nullable(v))
}

func (a *cgoAggregate) Done() (any, error) {
	return a.c.done()
}

func (db *DB) registerAggregate(name string, fn Reducer) error {
	return db.withConn(func(c *sqlite3.SQLiteConn) error {
		return c.RegisterAggregator(name, func() *cgoAggregate {
			return &cgoAggregate{c: newCollector(fn)}
		}, true)
	})
}

// restoreFrom overwrites db with a page level copy of src.
func (db *DB) restoreFrom(src *DB) error {
	return db.withConn(func(dst *sqlite3.SQLiteConn) error {
		return src.withConn(func(s *sqlite3.SQLiteConn) error {
			b, err := dst.Backup("main", s, "main")
			if err != nil {
				return err
			}
			for {
				done, err := b.Step(-1)
				if err != nil {
					return errors.Join(err, b.Finish())
				}
				if done {
					break
				}
			}
			return b.Finish()
		})
	})
}
