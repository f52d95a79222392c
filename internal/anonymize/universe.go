package anonymize

import (
	"cmp"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"

	"github.com/lepinkainen/dbtools/internal/dblite"
	"github.com/zeebo/blake3"
)

// number is a numeric SQLite value. Reals without a fractional part are
// stored as integers so 1 and 1.0 are the same value.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func newNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int64:
		return number{i: x}, true
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
			return number{i: int64(x)}, true
		}
		return number{f: x, isFloat: true}, true
	}
	return number{}, false
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) String() string {
	if n.isFloat {
		return strconv.FormatFloat(n.f, 'g', -1, 64)
	}
	return strconv.FormatInt(n.i, 10)
}

func compareNumbers(a, b number) int {
	if !a.isFloat && !b.isFloat {
		return cmp.Compare(a.i, b.i)
	}
	if c := cmp.Compare(a.float(), b.float()); c != 0 {
		return c
	}
	// an integer and a real that round to the same float64
	switch {
	case a.isFloat == b.isFloat:
		return cmp.Compare(a.i, b.i)
	case a.isFloat:
		return 1
	default:
		return -1
	}
}

// reserved returns the integers a surrogate must not take because of n:
// its truncation, floor and ceiling.
func (n number) reserved() []int64 {
	if !n.isFloat {
		return []int64{n.i}
	}
	var out []int64
	for _, v := range []float64{math.Trunc(n.f), math.Floor(n.f), math.Ceil(n.f)} {
		if v >= math.MinInt64 && v < math.MaxInt64 {
			out = append(out, int64(v))
		}
	}
	return out
}

// Universe holds the distinct values of the selected columns.
type Universe struct {
	Strings map[string]struct{}
	Numbers map[number]struct{}
	// Targets maps a table to its selected columns that hold values.
	Targets map[string][]string
	tables  []string
}

func newUniverse() *Universe {
	return &Universe{
		Strings: make(map[string]struct{}),
		Numbers: make(map[number]struct{}),
		Targets: make(map[string][]string),
	}
}

// Scan collects the distinct non-null values of every selected column of db.
// Columns without any value are not targets.
func Scan(db *dblite.DB, sel Selection) (*Universe, error) {
	u := newUniverse()
	tables, err := db.Tables()
	if err != nil {
		return nil, err
	}
	for _, table := range tables {
		cols, err := db.Columns(table)
		if err != nil {
			return nil, err
		}
		for _, col := range cols {
			if !sel.Matches(table, col) {
				continue
			}
			found, err := u.scanColumn(db, table, col)
			if err != nil {
				return nil, err
			}
			if !found {
				slog.Debug("column has no values", "table", table, "column", col)
				continue
			}
			if len(u.Targets[table]) == 0 {
				u.tables = append(u.tables, table)
			}
			u.Targets[table] = append(u.Targets[table], col)
		}
	}
	for _, sel := range sel.Unused() {
		slog.Warn("selector matched no column", "selector", sel)
	}
	return u, nil
}

func (u *Universe) scanColumn(db *dblite.DB, table, col string) (bool, error) {
	c := dblite.QuoteIdent(col)
	// unary plus hides the declared type so DATE columns come back as text;
	// BINARY keeps values a NOCASE or RTRIM column considers equal apart
	query := fmt.Sprintf("SELECT DISTINCT (+%s) COLLATE BINARY FROM %s WHERE %s IS NOT NULL", c, dblite.QuoteIdent(table), c)
	found := false
	for row, err := range db.Select(query) {
		if err != nil {
			return false, err
		}
		if err := u.add(row[0]); err != nil {
			return false, fmt.Errorf("%s.%s: %w", table, col, err)
		}
		found = true
	}
	return found, nil
}

func (u *Universe) add(v any) error {
	switch x := v.(type) {
	case string:
		u.Strings[x] = struct{}{}
	case []byte:
		u.Strings[string(x)] = struct{}{}
	default:
		n, ok := newNumber(v)
		if !ok {
			return fmt.Errorf("unsupported value %T", v)
		}
		u.Numbers[n] = struct{}{}
	}
	return nil
}

// Empty reports whether no column qualified.
func (u *Universe) Empty() bool {
	return len(u.Targets) == 0
}

// Tables returns the target tables in scan order.
func (u *Universe) Tables() []string {
	return u.tables
}

// Statements returns one UPDATE per target table rewriting all its target
// columns through fn.
func (u *Universe) Statements(fn string) []string {
	out := make([]string, 0, len(u.tables))
	for _, table := range u.tables {
		sets := ""
		for i, col := range u.Targets[table] {
			if i > 0 {
				sets += ", "
			}
			c := dblite.QuoteIdent(col)
			sets += fmt.Sprintf("%s=%s(%s)", c, fn, c)
		}
		out = append(out, fmt.Sprintf("UPDATE %s SET %s;", dblite.QuoteIdent(table), sets))
	}
	return out
}

func (u *Universe) sortedStrings() []string {
	out := make([]string, 0, len(u.Strings))
	for s := range u.Strings {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func (u *Universe) sortedNumbers() []number {
	out := make([]number, 0, len(u.Numbers))
	for n := range u.Numbers {
		out = append(out, n)
	}
	slices.SortFunc(out, compareNumbers)
	return out
}

// Fingerprint is a BLAKE3 digest of the sorted universe. Two runs over the
// same values produce the same mapping exactly when their fingerprints match.
func (u *Universe) Fingerprint() string {
	h := blake3.New()
	for _, s := range u.sortedStrings() {
		_, _ = h.Write([]byte("s" + strconv.Itoa(len(s)) + ":" + s))
	}
	for _, n := range u.sortedNumbers() {
		_, _ = h.Write([]byte("n:" + n.String() + ";"))
	}
	return hex.EncodeToString(h.Sum(nil))
}
