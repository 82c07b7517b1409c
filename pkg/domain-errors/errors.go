// Package domainerrors provides coded domain errors. Services return these so
// callers can branch on the code without string matching, and so the transport
// layer can map codes to HTTP statuses in one place.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the category of a domain error.
type Code string

const (
	// CodeUnauthenticated means no actor could be resolved for the request.
	CodeUnauthenticated Code = "unauthenticated"
	// CodeForbidden means the actor lacks a required permission. Messages
	// carrying this code must stay generic; permission names are not exposed
	// to unprivileged callers.
	CodeForbidden Code = "forbidden"
	// CodeOrgAccessDenied means the actor cannot reach the target
	// organization in the tenant hierarchy.
	CodeOrgAccessDenied Code = "org_access_denied"
	// CodeNotFound means a referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeValidation means the input failed validation.
	CodeValidation Code = "validation"
	// CodeInvalidTransition covers workflow guard failures: stale state,
	// missing comment or evidence, unmet condition.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeApprovalPending means the transition was registered for approval
	// and will not execute until enough approvers respond.
	CodeApprovalPending Code = "approval_pending"
	// CodeInvariantViolation means an internal consistency check failed.
	// Always a programming or data error; logged at error severity.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeUnavailable means the persistence collaborator failed. The core
	// never retries internally; the caller decides.
	CodeUnavailable Code = "unavailable"
	// CodeConflict means the operation lost to a concurrent writer.
	CodeConflict Code = "conflict"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error is a domain error with a stable code and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause remains
// reachable through errors.Is/As chains.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is delegates to errors.Is so callers can keep a single import.
func Is(err, target error) bool { return errors.Is(err, target) }
