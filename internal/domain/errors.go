package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied marks a store-level rejection of a read. A brand
	// new user's first live query can get this before their account doc
	// propagates; callers treat it as an empty result.
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError rejects bad input before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthorizationError means the actor is not a party to the record.
type AuthorizationError struct {
	ActorID  string
	RecordID string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s is not a party to %s", e.ActorID, e.RecordID)
}

// StateError means the operation is illegal for the record's current
// status; the record is no longer actionable for this request and the
// caller should refresh to the latest snapshot.
type StateError struct {
	Op     string
	Status OfferStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s an offer in status %q", e.Op, e.Status)
}

// ConflictError reports a revision precondition failure: someone else
// wrote the record after the caller last read it.
type ConflictError struct {
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict: expected %d, record at %d", e.Expected, e.Actual)
}

// TransientError wraps a store/network failure on a mutating call.
// Mutations are never auto-retried here; retrying a non-idempotent
// append risks duplication.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
