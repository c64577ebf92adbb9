package domain

import (
	"errors"
	"fmt"
)

// ErrDuplicateEvent marks an event id that was already admitted. Benign:
// the event is dropped and acknowledged as handled.
var ErrDuplicateEvent = errors.New("duplicate event")

// IdentityResolutionError reports a failure to map a channel identifier
// to a customer after the in-store race retry. Retryable.
type IdentityResolutionError struct {
	Type  IdentifierType
	Value string
	Err   error
}

func (e *IdentityResolutionError) Error() string {
	return fmt.Sprintf("resolve identity %s:%s: %v", e.Type, e.Value, e.Err)
}

func (e *IdentityResolutionError) Unwrap() error { return e.Err }

// InvalidTransitionError reports an illegal ticket state change. Never
// retried: it indicates a logic bug or an out-of-order replay, and the
// event goes to the dead-letter topic with context.
type InvalidTransitionError struct {
	TicketID string
	From     TicketStatus
	To       TicketStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("ticket %s: illegal transition %s -> %s", e.TicketID, e.From, e.To)
}

// ExternalCallError reports a responder (or other collaborator) call
// failure. Timeout and rate-limit style failures are retryable with
// backoff; the rest are not.
type ExternalCallError struct {
	Provider  string
	Timeout   bool
	Retryable bool
	Err       error
}

func (e *ExternalCallError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("external call to %s timed out: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("external call to %s failed: %v", e.Provider, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure. Transient contention (busy,
// locked) is retryable; schema or constraint corruption is not.
type PersistenceError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRetryable classifies an error for the pipeline's local retry loop.
// Duplicate events and illegal transitions are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateEvent) {
		return false
	}
	var inv *InvalidTransitionError
	if errors.As(err, &inv) {
		return false
	}
	var ident *IdentityResolutionError
	if errors.As(err, &ident) {
		return true
	}
	var ext *ExternalCallError
	if errors.As(err, &ext) {
		return ext.Timeout || ext.Retryable
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// ErrorKind names an error class for dead-letter payloads and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateEvent):
		return "duplicate_event"
	}
	var inv *InvalidTransitionError
	if errors.As(err, &inv) {
		return "invalid_transition"
	}
	var ident *IdentityResolutionError
	if errors.As(err, &ident) {
		return "identity_resolution"
	}
	var ext *ExternalCallError
	if errors.As(err, &ext) {
		if ext.Timeout {
			return "external_timeout"
		}
		return "external_call"
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return "persistence"
	}
	return "unknown"
}
