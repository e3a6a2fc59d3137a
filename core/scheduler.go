package core

import (
	"context"
	"time"
)

// Scheduler owns the time-ordered queue of pending actions. Implementations
// must guarantee the lease-and-reclaim discipline: an action yielded by Due
// is leased to exactly one caller until the lease expires or Complete is
// called, which is the sole mechanism preventing double delivery.
type Scheduler interface {
	// Schedule enqueues the action. ErrDuplicatePending if the lead
	// already has a pending or in-flight action.
	Schedule(ctx context.Context, action ScheduledAction) (ScheduledAction, error)

	// Due returns every action with due time ≤ now, ordered by due time
	// ascending then creation order, marking each in-flight with a fresh
	// lease as it is yielded. In-flight actions whose lease expired before
	// now are reclaimed and re-offered.
	Due(ctx context.Context, now time.Time) ([]ScheduledAction, error)

	// Complete records the outcome of a leased action: done on success, or
	// retry with backoff / permanent failure per the retry policy. The
	// returned copy reflects the post-completion state.
	Complete(ctx context.Context, actionID string, outcome Outcome) (ScheduledAction, error)

	// PendingFor returns the lead's pending or in-flight action, if any.
	PendingFor(ctx context.Context, leadID string) (ScheduledAction, bool, error)
}
