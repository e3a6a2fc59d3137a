package testutil

import (
	"time"

	"github.com/hupe1980/nurturemesh/core"
)

// ActionBuilder provides a fluent helper for constructing scheduled
// actions in tests.
type ActionBuilder struct {
	action core.ScheduledAction
}

// NewActionBuilder creates a builder for an action belonging to leadID.
func NewActionBuilder(leadID string) *ActionBuilder {
	return &ActionBuilder{action: core.ScheduledAction{
		LeadID: leadID,
		Kind:   core.ActionFollowUp,
		Status: core.ActionPending,
	}}
}

// Kind sets the action kind (chainable).
func (b *ActionBuilder) Kind(k core.ActionKind) *ActionBuilder { b.action.Kind = k; return b }

// Due sets the due time (chainable).
func (b *ActionBuilder) Due(t time.Time) *ActionBuilder { b.action.Due = t; return b }

// Build returns the constructed action.
func (b *ActionBuilder) Build() core.ScheduledAction { return b.action }
