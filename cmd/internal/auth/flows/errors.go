package flows

import (
	"errors"
	"fmt"
)

// Kind classifies a flow failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindStore      Kind = "store"
)

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrBadAdminSecret     = errors.New("invalid admin secret")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Error is the single error type returned by Service.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not a flow error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func fail(op string, kind Kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
