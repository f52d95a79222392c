package errors

import (
	stdErrors "errors"
	"fmt"
)

// InvalidConfigurationError represents contradictory or unusable options,
// such as a read-only in-memory database or an output file that already exists.
type InvalidConfigurationError struct {
	Message string
}

func (e *InvalidConfigurationError) Error() string {
	return e.Message
}

// NewInvalidConfigurationError creates a new InvalidConfigurationError with the given message
func NewInvalidConfigurationError(message string) *InvalidConfigurationError {
	return &InvalidConfigurationError{Message: message}
}

// NewInvalidConfigurationErrorf formats the message like fmt.Sprintf
func NewInvalidConfigurationErrorf(format string, args ...any) *InvalidConfigurationError {
	return &InvalidConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// IsInvalidConfigurationError reports whether err is an InvalidConfigurationError (even when wrapped).
func IsInvalidConfigurationError(err error) bool {
	var cfgErr *InvalidConfigurationError
	return stdErrors.As(err, &cfgErr)
}
