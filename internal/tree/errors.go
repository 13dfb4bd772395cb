package tree

import (
	"errors"
	"fmt"
)

// MalformedError reports a document whose shape does not match what the
// reader expects. Decoding never returns a partial value with it.
type MalformedError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	msg := "malformed document"
	if e.Path != "" {
		msg += " at " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func Malformed(path, format string, args ...any) *MalformedError {
	return &MalformedError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func IsMalformed(err error) bool {
	var e *MalformedError
	return errors.As(err, &e)
}

func AsMalformed(err error) *MalformedError {
	var e *MalformedError
	if errors.As(err, &e) {
		return e
	}
	return nil
}
