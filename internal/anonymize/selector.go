package anonymize

import (
	"strings"

	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

// Selection decides which columns get anonymized. Each selector is
// "table.column", "table." (every column of table) or ".column" (that column
// in every table). An empty Selection selects every column.
type Selection struct {
	selectors map[string]bool
	used      map[string]bool
}

// ParseSelection validates selectors.
func ParseSelection(selectors []string) (Selection, error) {
	s := Selection{selectors: make(map[string]bool), used: make(map[string]bool)}
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if !strings.Contains(sel, ".") || sel == "." {
			return Selection{}, dberrors.NewInvalidConfigurationErrorf("invalid selector %q: use table.column, table. or .column", sel)
		}
		s.selectors[sel] = true
	}
	return s, nil
}

// All reports whether every column is selected.
func (s Selection) All() bool {
	return len(s.selectors) == 0
}

// Matches reports whether column of table is selected.
func (s Selection) Matches(table, column string) bool {
	if s.All() {
		return true
	}
	for _, key := range []string{table + ".", "." + column, table + "." + column} {
		if s.selectors[key] {
			s.used[key] = true
			return true
		}
	}
	return false
}

// Unused returns the selectors that have not matched any column yet.
func (s Selection) Unused() []string {
	var out []string
	for sel := range s.selectors {
		if !s.used[sel] {
			out = append(out, sel)
		}
	}
	return out
}
