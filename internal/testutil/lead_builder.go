package testutil

import (
	"fmt"
	"time"

	"github.com/hupe1980/nurturemesh/core"
)

// LeadBuilder provides a fluent helper for constructing leads in tests.
// Example:
//
//	lead := NewLeadBuilder("lead-1").Stage(core.StageContacted).Sent(t0).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type LeadBuilder struct {
	lead core.Lead
	seq  int
}

// NewLeadBuilder creates a builder for a lead with the given ID and
// plausible contact defaults.
func NewLeadBuilder(id string) *LeadBuilder {
	return &LeadBuilder{lead: core.Lead{
		ID:        id,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Company:   "Analytical Engines Ltd",
		Stage:     core.StageNew,
	}}
}

// Stage sets the lifecycle stage (chainable).
func (b *LeadBuilder) Stage(s core.Stage) *LeadBuilder { b.lead.Stage = s; return b }

// Email overrides the contact email (chainable).
func (b *LeadBuilder) Email(e string) *LeadBuilder { b.lead.Email = e; return b }

// Industry sets the industry field (chainable).
func (b *LeadBuilder) Industry(i string) *LeadBuilder { b.lead.Industry = i; return b }

// PainPoints sets the pain point list (chainable).
func (b *LeadBuilder) PainPoints(p ...string) *LeadBuilder { b.lead.PainPoints = p; return b }

// Event appends an arbitrary history event (chainable).
func (b *LeadBuilder) Event(ev core.HistoryEvent) *LeadBuilder {
	if ev.ID == "" {
		b.seq++
		ev.ID = fmt.Sprintf("%s-ev-%d", b.lead.ID, b.seq)
	}
	b.lead.History = append(b.lead.History, ev)
	return b
}

// Sent appends an outbound message event at the given time (chainable).
func (b *LeadBuilder) Sent(at time.Time) *LeadBuilder {
	return b.Event(core.HistoryEvent{Kind: core.EventMessageSent, Action: core.ActionFollowUp, Timestamp: at})
}

// Signal appends an engagement signal at the given time (chainable).
func (b *LeadBuilder) Signal(kind core.HistoryEventKind, at time.Time) *LeadBuilder {
	return b.Event(core.HistoryEvent{Kind: kind, Timestamp: at})
}

// Build returns the constructed lead.
func (b *LeadBuilder) Build() core.Lead { return b.lead.Clone() }
