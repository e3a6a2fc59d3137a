package core

import "context"

// LeadStore is the durable keyed storage for lead records. All mutations
// are atomic per lead: two concurrent updates to the same lead serialize,
// never interleaving partial field writes. Every successful write bumps
// the lead's Version counter.
type LeadStore interface {
	// Get returns a copy of the lead or ErrNotFound.
	Get(ctx context.Context, id string) (Lead, error)

	// Upsert inserts or replaces the lead, idempotent by ID. The returned
	// copy carries the post-write Version.
	Upsert(ctx context.Context, lead Lead) (Lead, error)

	// AppendHistory appends an event to the lead's history. ErrNotFound
	// when the lead does not exist.
	AppendHistory(ctx context.Context, id string, ev HistoryEvent) (Lead, error)

	// Mutate runs fn against the lead's current record under the per-lead
	// lock and persists the result. A missing lead is presented to fn as a
	// zero record with the given ID so intake can create it. If fn returns
	// an error the write is discarded and the error is returned, leaving
	// the lead fully unchanged. This is the hook the orchestrator uses to
	// make decide-and-schedule atomic with the lead update.
	Mutate(ctx context.Context, id string, fn func(lead *Lead) error) (Lead, error)
}
