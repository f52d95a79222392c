package anonymize

import (
	"fmt"
	"strconv"
	"strings"
)

// Mapping is the injective substitution built from a Universe.
type Mapping struct {
	strings map[string]string
	numbers map[number]int64
}

// BuildMapping assigns surrogates. The i-th string in byte order becomes
// the lowercase hex of the i-th integer whose hex form is not an exponent
// literal such as "1e5", so no two string surrogates read as the same number
// in a NUMERIC column. Numbers are walked in ascending order: the i-th
// takes i unless i is reserved, in which case a cursor starting at the
// universe size moves to the next free integer. The truncation, floor and
// ceiling of every real value, the value of every all-digit string
// surrogate and every chosen surrogate are reserved, so a surrogate never
// equals an integer that occurs in the data or that a string surrogate
// turns into under numeric affinity.
func BuildMapping(u *Universe) *Mapping {
	m := &Mapping{
		strings: make(map[string]string, len(u.Strings)),
		numbers: make(map[number]int64, len(u.Numbers)),
	}
	nums := u.sortedNumbers()
	reserved := make(map[int64]bool, len(nums)*2+len(u.Strings))

	next := int64(0)
	for _, s := range u.sortedStrings() {
		hex := strconv.FormatInt(next, 16)
		for isExponentLiteral(hex) {
			next++
			hex = strconv.FormatInt(next, 16)
		}
		next++
		m.strings[s] = hex
		if v, err := strconv.ParseInt(hex, 10, 64); err == nil {
			reserved[v] = true
		}
	}
	for _, n := range nums {
		for _, r := range n.reserved() {
			reserved[r] = true
		}
	}
	cursor := int64(len(nums))
	for i, n := range nums {
		candidate := int64(i)
		if reserved[candidate] {
			for reserved[cursor] {
				cursor++
			}
			candidate = cursor
		}
		reserved[candidate] = true
		m.numbers[n] = candidate
	}
	return m
}

// isExponentLiteral reports whether a hex string is also a decimal
// exponent literal (digits, 'e', digits), which SQLite reads as a real.
func isExponentLiteral(s string) bool {
	mantissa, exp, ok := strings.Cut(s, "e")
	return ok && allDigits(mantissa) && allDigits(exp)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Lookup returns the surrogate of v. NULL maps to NULL; any other value
// missing from the mapping is an error since the mapping was built from the
// same data.
func (m *Mapping) Lookup(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if s, ok := m.strings[x]; ok {
			return s, nil
		}
	case []byte:
		if s, ok := m.strings[string(x)]; ok {
			return s, nil
		}
	default:
		if n, ok := newNumber(v); ok {
			if s, ok := m.numbers[n]; ok {
				return s, nil
			}
		}
	}
	return nil, fmt.Errorf("value %v (%T) is not in the anonymization mapping", v, v)
}

// Len returns the number of mapped values.
func (m *Mapping) Len() int {
	return len(m.strings) + len(m.numbers)
}
