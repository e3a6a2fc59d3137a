// Package engine implements the nurture orchestrator: it composes the
// lead store, state machine, scheduler, template index, personalizer and
// delivery transport into the two externally visible operations, Nurture
// (bulk intake) and Tick (drain due actions), making idempotent,
// retry-safe decisions under partial failure.
//
// Concurrency model: Tick invocations may run concurrently; the
// scheduler's lease-and-reclaim discipline is the sole mechanism
// preventing double delivery, so no global lock spans ticks. Per-lead
// atomicity comes from LeadStore.Mutate: intake, decision and scheduling
// for one lead either all take effect or none do.
//
// Error model: per-action failures during Tick are absorbed and reported
// in the aggregate TickResult, never raised out of the call. Transient
// store/index/transport failures are retried with backoff through the
// scheduler until the retry ceiling, after which the action is marked
// permanently failed and surfaced for operator visibility rather than
// silently dropped.
package engine
