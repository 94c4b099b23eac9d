// Package idderrors implements the error taxonomy of spec.md §7: Validation,
// NotFound, Duplicated, ConnectionFailure, DriverFailure, LockConflict, and
// Internal. It is adapted from the teacher's internal/errors package,
// generalized from an LLM-call taxonomy to the control plane's own kinds.
package idderrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of retry/escalation policy.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindDuplicated
	KindConnectionFailure
	KindDriverFailure
	KindLockConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDuplicated:
		return "duplicated"
	case KindConnectionFailure:
		return "connection_failure"
	case KindDriverFailure:
		return "driver_failure"
	case KindLockConflict:
		return "lock_conflict"
	default:
		return "internal"
	}
}

// Transient reports whether the kind should be retried with backoff rather
// than surfaced immediately.
func (k Kind) Transient() bool {
	switch k {
	case KindConnectionFailure, KindDriverFailure, KindLockConflict:
		return true
	default:
		return false
	}
}

// Error wraps an underlying cause with a Kind from the §7 taxonomy.
type Error struct {
	Kind Kind
	Err  error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrLocked is the sentinel for a LockConflict: the row was claimed by
// another worker between read and write. The runtime's ReturnCode.Locked
// convention (spec.md §4.C) treats this specially: requeue with backoff
// rather than marking the event failed.
var ErrLocked = &Error{Kind: KindLockConflict, Msg: "row is locked by another worker"}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Err: err, Msg: msg}
}

// NotFound constructs a NotFound error; agents treat this as a no-op rather
// than surfacing it (spec.md §7).
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

// Duplicated constructs a Duplicated error; idempotent inserts treat this as
// success.
func Duplicated(msg string) *Error { return &Error{Kind: KindDuplicated, Msg: msg} }

// IsKind reports whether err (or anything it wraps) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsTransient reports whether err should be retried with bounded backoff.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.Transient()
	}
	return false
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsDuplicated reports whether err is a Duplicated (unique-constraint) error.
func IsDuplicated(err error) bool { return IsKind(err, KindDuplicated) }

// IsLockConflict reports whether err is the LockConflict sentinel.
func IsLockConflict(err error) bool { return IsKind(err, KindLockConflict) }
