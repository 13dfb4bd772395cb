package history

import (
	"errors"
	"fmt"
)

// UnavailableError means the persistence backend failed. It is never turned
// into "absent": the caller skips the cycle and retries on the next one.
type UnavailableError struct {
	Query     string
	Operation string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %s %s: %v", e.Operation, e.Query, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func NewUnavailableError(query, operation string, err error) *UnavailableError {
	return &UnavailableError{Query: query, Operation: operation, Err: err}
}

func IsUnavailable(err error) bool {
	var e *UnavailableError
	return errors.As(err, &e)
}
