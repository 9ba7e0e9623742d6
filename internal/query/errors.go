package query

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports a rejected request parameter. It is always
// raised before any storage round trip.
type ValidationError struct {
	Param      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Constraint)
}

func newValidationError(param, format string, args ...any) *ValidationError {
	return &ValidationError{Param: param, Constraint: fmt.Sprintf(format, args...)}
}

// TimeoutError reports that execution exceeded the configured timeout.
// The in-flight read is abandoned, never awaited; retrying is caller
// policy.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query exceeded timeout of %s", e.Timeout)
}

// StorageError wraps a failure from the underlying store. The cause is
// propagated unchanged so callers can inspect driver errors.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage read failed: %v", e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
