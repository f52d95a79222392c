package errors

import (
	stdErrors "errors"
	"fmt"
)

// NotFoundError is returned when an input file does not exist
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s does not exist", e.Path)
}

// NewNotFoundError creates a NotFoundError for path
func NewNotFoundError(path string) *NotFoundError {
	return &NotFoundError{Path: path}
}

// IsNotFoundError reports whether err is a NotFoundError (even when wrapped).
func IsNotFoundError(err error) bool {
	var nfErr *NotFoundError
	return stdErrors.As(err, &nfErr)
}
