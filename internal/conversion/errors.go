package conversion

import (
	"errors"
	"fmt"
)

// Kind classifies a conversion failure. The HTTP layer maps kinds to status codes.
type Kind string

const (
	KindValidation Kind = "validation"
	KindFetch      Kind = "fetch"
	KindConvert    Kind = "convert"
	KindTimeout    Kind = "timeout"
	KindUnexpected Kind = "unexpected"
)

// Error is the single error type returned across the conversion boundary.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind. An err that already is an *Error keeps its kind.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validationf builds a validation error from a message.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or KindUnexpected when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Message returns the innermost description of err without the operation prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Err.Error()
	}
	return err.Error()
}
