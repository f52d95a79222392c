package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
)

// EmptyRowError means an insert or update row had no usable column left
// after being matched against the table's columns.
type EmptyRowError struct {
	Table   string
	Given   []string
	Columns []string
}

func (e *EmptyRowError) Error() string {
	return fmt.Sprintf("upsert into %s malformed: given [%s], needed [%s]",
		e.Table, strings.Join(e.Given, ", "), strings.Join(e.Columns, ", "))
}

// NewEmptyRowError creates an EmptyRowError
func NewEmptyRowError(table string, given, columns []string) *EmptyRowError {
	return &EmptyRowError{Table: table, Given: given, Columns: columns}
}

// IsEmptyRowError reports whether err is an EmptyRowError (even when wrapped).
func IsEmptyRowError(err error) bool {
	var rowErr *EmptyRowError
	return stdErrors.As(err, &rowErr)
}
