package errors

import (
	stdErrors "errors"
	"fmt"
)

// NothingToAnonymizeError is returned when no selected column holds a
// non-null value.
type NothingToAnonymizeError struct {
	Source string
}

func (e *NothingToAnonymizeError) Error() string {
	return fmt.Sprintf("nothing to anonymize in %s", e.Source)
}

// NewNothingToAnonymizeError creates a NothingToAnonymizeError
func NewNothingToAnonymizeError(source string) *NothingToAnonymizeError {
	return &NothingToAnonymizeError{Source: source}
}

// IsNothingToAnonymizeError reports whether err is a NothingToAnonymizeError (even when wrapped).
func IsNothingToAnonymizeError(err error) bool {
	var anonErr *NothingToAnonymizeError
	return stdErrors.As(err, &anonErr)
}
