package results

import (
	"errors"
	"fmt"
)

// InvalidRowError is returned when a Row cannot be built from upstream data.
type InvalidRowError struct {
	Column string
	Reason string
}

func (e *InvalidRowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("invalid row: %s", e.Reason)
	}
	return fmt.Sprintf("invalid row: column %q: %s", e.Column, e.Reason)
}

func NewInvalidRowError(column, reason string) *InvalidRowError {
	return &InvalidRowError{Column: column, Reason: reason}
}

func IsInvalidRowError(err error) bool {
	var e *InvalidRowError
	return errors.As(err, &e)
}
