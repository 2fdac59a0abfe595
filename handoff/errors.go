package handoff

import (
	"errors"
	"fmt"
)

// ErrorKind classifies handoff errors so callers can distinguish
// "never attempted" from "attempted and degraded".
type ErrorKind string

const (
	// KindRejectedInitiation covers bad agent pairs and unresolved
	// sessions. No request object was created.
	KindRejectedInitiation ErrorKind = "REJECTED_INITIATION"

	// KindTransferFailure covers turn release/propagate/request failures
	// mid-flight. The request moved to FAILED.
	KindTransferFailure ErrorKind = "TRANSFER_FAILURE"

	// KindPersistenceDegraded covers vault write or round-trip failures.
	// The request still completes but carries no durable context.
	KindPersistenceDegraded ErrorKind = "PERSISTENCE_DEGRADED"

	// KindVerificationFailure covers tag-checksum mismatches on persist or
	// hydrate. Hard failure, no context is handed back.
	KindVerificationFailure ErrorKind = "VERIFICATION_FAILURE"

	// KindUnknownHandoff covers status/cancel/hydrate calls on an id this
	// process never tracked.
	KindUnknownHandoff ErrorKind = "UNKNOWN_HANDOFF"
)

// Error is the structured handoff error.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Op, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError creates a handoff error without a cause.
func newError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// wrapError creates a handoff error wrapping a cause.
func wrapError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf extracts the ErrorKind from err, or "" if err is not a handoff
// error.
func KindOf(err error) ErrorKind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return ""
}

// IsRejectedInitiation reports whether err is a rejected initiation.
func IsRejectedInitiation(err error) bool {
	return KindOf(err) == KindRejectedInitiation
}

// IsTransferFailure reports whether err is a mid-flight transfer failure.
func IsTransferFailure(err error) bool {
	return KindOf(err) == KindTransferFailure
}

// IsPersistenceDegraded reports whether err marks degraded persistence.
func IsPersistenceDegraded(err error) bool {
	return KindOf(err) == KindPersistenceDegraded
}

// IsVerificationFailure reports whether err is a tag parity failure.
func IsVerificationFailure(err error) bool {
	return KindOf(err) == KindVerificationFailure
}

// IsUnknownHandoff reports whether err refers to an untracked handoff id.
func IsUnknownHandoff(err error) bool {
	return KindOf(err) == KindUnknownHandoff
}
