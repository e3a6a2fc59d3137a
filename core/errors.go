package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lead or template does not exist.
	// Callers handle it explicitly; nothing is ever created silently.
	ErrNotFound = errors.New("not found")

	// ErrDuplicatePending is returned by Scheduler.Schedule when the lead
	// already has a pending action. It signals a caller bug or an
	// idempotent re-intake and is never retried.
	ErrDuplicatePending = errors.New("lead already has a pending action")

	// ErrNoMatch is returned by TemplateIndex.BestMatch when no candidate
	// clears the similarity floor. Non-fatal: the action is deferred.
	ErrNoMatch = errors.New("no matching template")

	// ErrRejected is returned when the agent directory refuses a
	// registration. Surfaced to the caller, not retried automatically.
	ErrRejected = errors.New("registration rejected by directory")
)

// TransientError wraps a store, index or directory failure that is safe to
// retry with backoff: timeouts, temporary unavailability, connection loss.
type TransientError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for operation op. A nil err
// returns nil so call sites can wrap unconditionally.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err should be retried with backoff. Context
// deadline expiry counts as transient: a timed-out call is a retryable
// failure, never a fatal one.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
