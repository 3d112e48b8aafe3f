// Package errs defines the error taxonomy: a small set of
// kinds, each carrying a stable code so callers (the CLI's exit-code mapping,
// JSON error envelopes) can switch on it without string matching.
package errs

import "fmt"

// Kind is the top-level error category.
type Kind string

const (
	KindValidation Kind = "validation"
	KindState Kind = "state"
	KindDistribution Kind = "distribution"
	KindBroker Kind = "broker"
	KindPersistence Kind = "persistence"
	KindArithmetic Kind = "arithmetic"
)

// Error is the concrete type returned across package boundaries for expected
// (non-bug) failures. It is never used for programmer errors (those panic).
type Error struct {
	Kind Kind
	Code string
	Message string
	err error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Message)
}

// Unwrap exposes a wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.err }

// New builds a bare Error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an Error that wraps an underlying cause (a driver error, a
// broker SDK error,...).
func Wrap(kind Kind, code string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Code: code, Message: msg, err: cause}
}

// Is lets errors.Is match on Kind+Code equality, independent of Message,
// which is how call sites distinguish e.g. two InvalidTransition errors with
// different from/to values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// BrokerDisposition tells the caller whether a BrokerError should trigger the
// watcher's backoff (Transient) or unwind the operation immediately (Fatal).
type BrokerDisposition string

const (
	Transient BrokerDisposition = "transient"
	Fatal BrokerDisposition = "fatal"
)

// BrokerError is the *BrokerError kind with an explicit disposition attached.
type BrokerError struct {
	Disposition BrokerDisposition
	Code string // Timeout|ConnectionReset|RateLimited|Rejected|Unauthorized|Unsupported
	Message string
	err error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker(%s): %s: %s", e.Disposition, e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error { return e.err }

// NewBrokerError builds a BrokerError.
func NewBrokerError(disp BrokerDisposition, code string, cause error) *BrokerError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &BrokerError{Disposition: disp, Code: code, Message: msg, err: cause}
}

// IsTransient reports whether err is a BrokerError with Transient disposition.
func IsTransient(err error) bool {
	be, ok := err.(*BrokerError)
	return ok && be.Disposition == Transient
}
