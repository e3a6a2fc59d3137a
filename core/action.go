package core

import "time"

// ActionKind enumerates the communication actions the state machine emits.
type ActionKind string

const (
	// ActionInitialContact is the first outreach to a new lead.
	ActionInitialContact ActionKind = "initial-contact"
	// ActionFollowUp is a subsequent nurturing touch.
	ActionFollowUp ActionKind = "follow-up"
	// ActionEscalation hands a qualified lead to a human.
	ActionEscalation ActionKind = "escalation"
	// ActionCloseOut is the final message when a lead is closed.
	ActionCloseOut ActionKind = "close-out"
)

// ActionStatus tracks a scheduled action through its lifecycle.
type ActionStatus string

const (
	// ActionPending means the action waits for its due time.
	ActionPending ActionStatus = "pending"
	// ActionInFlight means a worker holds a lease on the action.
	ActionInFlight ActionStatus = "in-flight"
	// ActionDone means the action was delivered.
	ActionDone ActionStatus = "done"
	// ActionFailed means the action exhausted its retries or was cancelled.
	ActionFailed ActionStatus = "failed"
)

// ScheduledAction is a time-keyed unit of nurturing work. LeadID is a weak
// reference: the scheduler relates the action to a lead but never owns the
// lead record. Seq provides a stable tie-break for equal due times.
type ScheduledAction struct {
	ID          string       `json:"id"`
	LeadID      string       `json:"lead_id"`
	Kind        ActionKind   `json:"kind"`
	Due         time.Time    `json:"due"`
	Attempt     int          `json:"attempt"`
	Status      ActionStatus `json:"status"`
	LeaseExpiry time.Time    `json:"lease_expiry,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	Seq         uint64       `json:"seq"`
}

// Outcome reports the result of one delivery attempt back to the scheduler.
type Outcome struct {
	// Delivered marks the attempt as successful; the action completes.
	Delivered bool
	// Reason carries a short operator-facing description on failure.
	Reason string
	// Permanent skips the retry policy and fails the action immediately.
	// Cooperative cancellation of an in-flight action uses this path.
	Permanent bool
}
