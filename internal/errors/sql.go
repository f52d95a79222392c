package errors

import (
	stdErrors "errors"
	"fmt"
)

// SQLError wraps an error raised by the database engine together with the
// statement that failed. Bound parameters are inlined into Statement for
// diagnostics only.
type SQLError struct {
	Statement string
	Err       error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("%v\n%s", e.Err, e.Statement)
}

func (e *SQLError) Unwrap() error {
	return e.Err
}

// NewSQLError creates a SQLError for statement
func NewSQLError(statement string, err error) *SQLError {
	return &SQLError{Statement: statement, Err: err}
}

// IsSQLError reports whether err is a SQLError (even when wrapped).
func IsSQLError(err error) bool {
	var sqlErr *SQLError
	return stdErrors.As(err, &sqlErr)
}
