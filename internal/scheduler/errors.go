package scheduler

import (
	"errors"
	"fmt"
)

// CycleError reports which step of a query cycle failed.
type CycleError struct {
	Query string
	Op    string
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("query %s: failed to %s: %v", e.Query, e.Op, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

func NewCycleError(query, op string, err error) *CycleError {
	return &CycleError{
		Query: query,
		Op:    op,
		Err:   err,
	}
}

func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

func AsCycleError(err error) *CycleError {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}
