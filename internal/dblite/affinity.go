package dblite

import "strings"

// Column affinities as SQLite derives them from a declared type.
const (
	AffinityInteger = "INTEGER"
	AffinityText    = "TEXT"
	AffinityBlob    = "BLOB"
	AffinityReal    = "REAL"
	AffinityNumeric = "NUMERIC"
)

// Affinity applies SQLite's type affinity rules to a declared column type.
func Affinity(declared string) string {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "INT"):
		return AffinityInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return AffinityText
	case t == "", strings.Contains(t, "BLOB"):
		return AffinityBlob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return AffinityReal
	default:
		return AffinityNumeric
	}
}
