package dblite

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

// Func is a scalar function callable from SQL. Arguments arrive as int64,
// float64, string, []byte or nil.
type Func func(args ...any) (any, error)

// Reducer receives every non-null value an aggregate observed, in order.
type Reducer func(values []any) (any, error)

// RegisterFunction makes fn callable from SQL as name with arity arguments
// (negative for variadic).
func (db *DB) RegisterFunction(name string, arity int, fn Func) error {
	if fn == nil {
		return dberrors.NewInvalidConfigurationErrorf("function %s has no implementation", name)
	}
	if err := db.registerScalar(name, arity, fn); err != nil {
		return fmt.Errorf("failed to register function %s: %w", name, err)
	}
	return nil
}

// RegisterAggregate makes fn callable from SQL as a one argument aggregate.
// NULL inputs are ignored and the result is NULL when no value was seen.
func (db *DB) RegisterAggregate(name string, fn Reducer) error {
	if fn == nil {
		return dberrors.NewInvalidConfigurationErrorf("aggregate %s has no implementation", name)
	}
	if err := db.registerAggregate(name, fn); err != nil {
		return fmt.Errorf("failed to register aggregate %s: %w", name, err)
	}
	return nil
}

// callSQL rewrites calls to functions registered on db to the names the
// engine bound them under.
func (db *DB) callSQL(query string) string {
	if len(db.funcNames) == 0 {
		return query
	}
	return rewriteCalls(query, db.funcNames)
}

// rewriteCalls renames bare identifiers found in names (by lowercase name)
// when they are followed by '('. Literals, quoted identifiers and comments
// are copied untouched.
func rewriteCalls(query string, names map[string]string) string {
	var sb strings.Builder
	sb.Grow(len(query))
	for i := 0; i < len(query); {
		c := query[i]
		j := i + 1
		switch {
		case c == '\'' || c == '"' || c == '`':
			j = skipQuoted(query, i, c)
		case c == '[':
			j = skipPast(query, i+1, "]")
		case c == '-' && strings.HasPrefix(query[i:], "--"):
			j = skipPast(query, i+2, "\n")
		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			j = skipPast(query, i+2, "*/")
		case isIdentPart(c):
			for j < len(query) && isIdentPart(query[j]) {
				j++
			}
			word := query[i:j]
			if bound, ok := names[strings.ToLower(word)]; ok && isIdentStart(c) && opensCall(query[j:]) &&
				(i == 0 || query[i-1] != '.') {
				sb.WriteString(bound)
				i = j
				continue
			}
		}
		sb.WriteString(query[i:j])
		i = j
	}
	return sb.String()
}

// skipQuoted returns the index just past the quoted token starting at i.
// A doubled quote is an escaped one.
func skipQuoted(s string, i int, q byte) int {
	j := i + 1
	for {
		k := strings.IndexByte(s[j:], q)
		if k < 0 {
			return len(s)
		}
		j += k + 1
		if j < len(s) && s[j] == q {
			j++
			continue
		}
		return j
	}
}

func skipPast(s string, from int, end string) int {
	k := strings.Index(s[from:], end)
	if k < 0 {
		return len(s)
	}
	return from + k + len(end)
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 0x80 || (c|0x20 >= 'a' && c|0x20 <= 'z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '$' || (c >= '0' && c <= '9')
}

func opensCall(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	return strings.HasPrefix(rest, "(")
}

type collector struct {
	values []any
	reduce Reducer
}

func newCollector(reduce Reducer) *collector {
	return &collector{reduce: reduce}
}

func (c *collector) step(v any) {
	if v == nil {
		return
	}
	c.values = append(c.values, cloneValue(v))
}

func (c *collector) done() (any, error) {
	if len(c.values) == 0 {
		return nil, nil
	}
	v, err := c.reduce(c.values)
	if err != nil {
		return nil, err
	}
	return resultValue(v), nil
}

func callScalar(fn Func, args []any) (any, error) {
	in := make([]any, len(args))
	for i, a := range args {
		in[i] = cloneValue(a)
	}
	v, err := fn(in...)
	if err != nil {
		return nil, err
	}
	return resultValue(v), nil
}

// cloneValue copies blobs, whose memory the engine may reuse after the call.
func cloneValue(v any) any {
	if b, ok := v.([]byte); ok {
		if b == nil {
			return nil
		}
		return append([]byte{}, b...)
	}
	return v
}

// resultValue narrows Go values to the types both engines accept as results.
func resultValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}

// ToInt64 converts a SQLite value to an integer when it is integral.
func ToInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// ToFloat64 converts a numeric SQLite value to float64.
func ToFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// ToString renders a SQLite value as text; nil becomes "".
func ToString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	default:
		return fmt.Sprint(x), true
	}
}
