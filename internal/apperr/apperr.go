// Package apperr defines the error taxonomy returned by the domain services.
// Every rejected operation surfaces as an *Error carrying a stable kind and code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error independently of its specific cause.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindInternal      Kind = "internal"
)

// Error is a domain error with a stable {kind, code, message} triple.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by code so sentinel-style comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation creates a validation error.
func Validation(code, message string) *Error { return New(KindValidation, code, message) }

// NotFound creates a not-found error.
func NotFound(code, message string) *Error { return New(KindNotFound, code, message) }

// Conflict creates a conflict error.
func Conflict(code, message string) *Error { return New(KindConflict, code, message) }

// Forbidden creates an authorization error.
func Forbidden(code, message string) *Error { return New(KindAuthorization, code, message) }

// State creates an error for an operation invalid in the current status.
func State(code, message string) *Error { return New(KindState, code, message) }

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "Internal", Message: message, Err: err}
}

// As extracts an *Error from err. Non-domain errors are reported as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal error", err)
}

// KindOf returns the kind of err, or KindInternal for non-domain errors.
func KindOf(err error) Kind {
	return As(err).Kind
}

// CodeOf returns the code of err, or "Internal" for non-domain errors.
func CodeOf(err error) string {
	return As(err).Code
}

// Wrap returns err unchanged when it already is a domain error, otherwise wraps it as internal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Internal(message, err)
}
