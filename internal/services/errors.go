package services

import (
	"errors"
	"fmt"
)

// Kind classifies a flow failure. Handlers map each kind to one HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is returned by every service operation that fails. Message is safe
// to show to the caller; Err is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(msg string) error   { return &Error{Kind: KindValidation, Message: msg} }
func conflictError(msg string) error     { return &Error{Kind: KindConflict, Message: msg} }
func unauthorizedError(msg string) error { return &Error{Kind: KindUnauthorized, Message: msg} }
func forbiddenError(msg string) error    { return &Error{Kind: KindForbidden, Message: msg} }
func notFoundError(msg string) error     { return &Error{Kind: KindNotFound, Message: msg} }

func internalError(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message for err.
func MessageOf(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "Server error."
}
