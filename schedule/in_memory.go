package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/nurturemesh/core"
)

// Options configures the in-memory scheduler.
type Options struct {
	// LeaseTimeout bounds how long a yielded action may stay in-flight
	// before the next Due call reclaims it.
	LeaseTimeout time.Duration

	// RetryCeiling is the attempt count at which a failing action is
	// marked permanently failed instead of rescheduled.
	RetryCeiling int

	// Backoff maps an attempt count to the delay before the next retry.
	Backoff func(attempt int) time.Duration

	// Now supplies the clock; overridden in tests.
	Now func() time.Time
}

// InMemoryScheduler is a process-local core.Scheduler. It is safe for
// concurrent use and returns copies so callers can never mutate queue
// internals. State survives only as long as the process; swap in a durable
// implementation for multi-process deployments.
type InMemoryScheduler struct {
	mu      sync.Mutex
	actions map[string]*core.ScheduledAction // actionID -> action (arena)
	byLead  map[string]string                // leadID -> active actionID (index)
	seq     uint64
	opts    Options
}

// NewInMemoryScheduler constructs an empty scheduler. Defaults: 5 minute
// lease, retry ceiling 5, exponential backoff from 30s capped at 15m.
func NewInMemoryScheduler(optFns ...func(o *Options)) *InMemoryScheduler {
	opts := Options{
		LeaseTimeout: 5 * time.Minute,
		RetryCeiling: 5,
		Now:          time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Backoff == nil {
		opts.Backoff = func(attempt int) time.Duration {
			d := 30 * time.Second << uint(attempt)
			if d > 15*time.Minute {
				return 15 * time.Minute
			}
			return d
		}
	}
	return &InMemoryScheduler{
		actions: make(map[string]*core.ScheduledAction),
		byLead:  make(map[string]string),
		opts:    opts,
	}
}

// Schedule enqueues the action as pending. core.ErrDuplicatePending when
// the lead already has an active (pending or in-flight) action.
func (s *InMemoryScheduler) Schedule(ctx context.Context, action core.ScheduledAction) (core.ScheduledAction, error) {
	if err := ctx.Err(); err != nil {
		return core.ScheduledAction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byLead[action.LeadID]; exists {
		return core.ScheduledAction{}, core.ErrDuplicatePending
	}

	if action.ID == "" {
		action.ID = core.NewID()
	}
	s.seq++
	action.Seq = s.seq
	action.Status = core.ActionPending
	action.LeaseExpiry = time.Time{}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = s.opts.Now()
	}

	cp := action
	s.actions[action.ID] = &cp
	s.byLead[action.LeadID] = action.ID
	return action, nil
}

// Due reclaims expired leases, then yields every pending action with due
// time ≤ now ordered by due time ascending and creation sequence as the
// stable tie-break, marking each in-flight under a fresh lease.
func (s *InMemoryScheduler) Due(ctx context.Context, now time.Time) ([]core.ScheduledAction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*core.ScheduledAction
	for _, a := range s.actions {
		if a.Status == core.ActionInFlight && !a.LeaseExpiry.After(now) {
			// Stalled or crashed worker: reclaim.
			a.Status = core.ActionPending
			a.LeaseExpiry = time.Time{}
		}
		if a.Status == core.ActionPending && !a.Due.After(now) {
			ready = append(ready, a)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Due.Equal(ready[j].Due) {
			return ready[i].Seq < ready[j].Seq
		}
		return ready[i].Due.Before(ready[j].Due)
	})

	out := make([]core.ScheduledAction, 0, len(ready))
	for _, a := range ready {
		a.Status = core.ActionInFlight
		a.LeaseExpiry = now.Add(s.opts.LeaseTimeout)
		out = append(out, *a)
	}
	return out, nil
}

// Complete settles a leased action. Success marks it done and frees the
// lead's slot. Failure increments the attempt counter and either
// reschedules with backoff or, at the retry ceiling (or on a permanent
// outcome), marks the action failed for good. Settling an already
// finalized action is a no-op returning its current state.
func (s *InMemoryScheduler) Complete(ctx context.Context, actionID string, outcome core.Outcome) (core.ScheduledAction, error) {
	if err := ctx.Err(); err != nil {
		return core.ScheduledAction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[actionID]
	if !ok {
		return core.ScheduledAction{}, core.ErrNotFound
	}

	// A settle can arrive after the action was finalized elsewhere, for
	// example when the lead was closed while its action was in flight.
	// The lead's slot may already belong to a newer action.
	if a.Status == core.ActionDone || a.Status == core.ActionFailed {
		return *a, nil
	}

	if outcome.Delivered {
		a.Status = core.ActionDone
		a.LeaseExpiry = time.Time{}
		s.releaseSlot(a)
		return *a, nil
	}

	a.Attempt++
	if outcome.Permanent || a.Attempt >= s.opts.RetryCeiling {
		a.Status = core.ActionFailed
		a.LeaseExpiry = time.Time{}
		s.releaseSlot(a)
		return *a, nil
	}

	a.Status = core.ActionPending
	a.LeaseExpiry = time.Time{}
	a.Due = s.opts.Now().Add(s.opts.Backoff(a.Attempt))
	return *a, nil
}

// releaseSlot frees the lead's slot only while this action still owns it.
// Callers hold s.mu.
func (s *InMemoryScheduler) releaseSlot(a *core.ScheduledAction) {
	if s.byLead[a.LeadID] == a.ID {
		delete(s.byLead, a.LeadID)
	}
}

// PendingFor returns the lead's active action, if any.
func (s *InMemoryScheduler) PendingFor(ctx context.Context, leadID string) (core.ScheduledAction, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.ScheduledAction{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byLead[leadID]
	if !ok {
		return core.ScheduledAction{}, false, nil
	}
	a, ok := s.actions[id]
	if !ok {
		return core.ScheduledAction{}, false, nil
	}
	return *a, true, nil
}
