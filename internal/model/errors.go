package model

import (
	"errors"
	"fmt"
)

// Kind categorizes a decision-core failure.
type Kind string

const (
	// KindSchema indicates a malformed input object or delta.
	KindSchema Kind = "SCHEMA_VIOLATION"

	// KindPolicy indicates rule enforcement rejected the change.
	KindPolicy Kind = "POLICY_VIOLATION"

	// KindNotFound indicates a referenced object does not exist.
	KindNotFound Kind = "OBJECT_NOT_FOUND"

	// KindAlreadyExists indicates an add collided with an existing object.
	KindAlreadyExists Kind = "OBJECT_ALREADY_EXISTS"

	// KindCommunication indicates a resource or connector was unreachable.
	KindCommunication Kind = "COMMUNICATION_FAILURE"

	// KindConfiguration indicates bad synchronization or policy setup.
	KindConfiguration Kind = "CONFIGURATION_ERROR"

	// KindSecurity indicates an authorization denial.
	KindSecurity Kind = "SECURITY_VIOLATION"

	// KindExpression indicates a condition or mapping script failed to
	// evaluate.
	KindExpression Kind = "EXPRESSION_ERROR"

	// KindConflict indicates a concurrency conflict detected by the
	// watcher protocol.
	KindConflict Kind = "CONCURRENCY_CONFLICT"
)

// Error is the structured failure type every collaborator returns.
//
// FocusOID and RuleID are optional context, filled in when known.
type Error struct {
	Kind     Kind
	Message  string
	FocusOID string
	RuleID   string
	Err      error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.FocusOID != "" && e.RuleID != "":
		return fmt.Sprintf("%s: %s (focus=%s, rule=%s)", e.Kind, e.Message, e.FocusOID, e.RuleID)
	case e.FocusOID != "":
		return fmt.Sprintf("%s: %s (focus=%s)", e.Kind, e.Message, e.FocusOID)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a structured error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps a cause under the given kind.
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind from an error chain.
// Returns empty Kind for nil or untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var cd *ConflictDetectedError
	if errors.As(err, &cd) {
		return KindConflict
	}
	return ""
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ConflictDetectedError reports that another writer modified the watched
// focus object while a run was in flight.
//
// It is a typed value propagated up through each call boundary - the run
// loop pattern-matches on it specifically and does not treat it as fatal.
type ConflictDetectedError struct {
	FocusOID     string
	WatcherToken string
	BaseVersion  int64 // version when the watcher was registered
	SeenVersion  int64 // version observed at detection time
}

// Error implements the error interface.
func (e *ConflictDetectedError) Error() string {
	return fmt.Sprintf("%s: focus %s modified concurrently (version %d -> %d)",
		KindConflict, e.FocusOID, e.BaseVersion, e.SeenVersion)
}

// IsConflictDetected reports whether the error chain carries a detected
// write-write conflict. Uses errors.As to handle wrapped errors.
func IsConflictDetected(err error) bool {
	var cd *ConflictDetectedError
	return errors.As(err, &cd)
}
