package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/nurturemesh/core"
	"github.com/hupe1980/nurturemesh/internal/testutil"
)

// Interface compliance (compile-time assertion)
var _ core.Scheduler = (*InMemoryScheduler)(nil)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestInMemoryScheduler_Schedule_AssignsIDAndSequence(t *testing.T) {
	s := NewInMemoryScheduler()

	a, err := s.Schedule(context.Background(), testutil.NewActionBuilder("lead-1").Due(t0).Build())

	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, core.ActionPending, a.Status)
	assert.Equal(t, uint64(1), a.Seq)
}

func TestInMemoryScheduler_Schedule_RejectsSecondActiveAction(t *testing.T) {
	s := NewInMemoryScheduler()
	ctx := context.Background()

	_, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	require.NoError(t, err)

	_, err = s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0.Add(time.Hour)).Build())
	assert.ErrorIs(t, err, core.ErrDuplicatePending)

	// A different lead is unaffected.
	_, err = s.Schedule(ctx, testutil.NewActionBuilder("lead-2").Due(t0).Build())
	assert.NoError(t, err)
}

func TestInMemoryScheduler_Due_YieldsOnlyRipeActionsInOrder(t *testing.T) {
	s := NewInMemoryScheduler()
	ctx := context.Background()

	late, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-late").Due(t0.Add(time.Minute)).Build())
	require.NoError(t, err)
	early, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-early").Due(t0.Add(-time.Hour)).Build())
	require.NoError(t, err)
	_, err = s.Schedule(ctx, testutil.NewActionBuilder("lead-future").Due(t0.Add(time.Hour)).Build())
	require.NoError(t, err)

	due, err := s.Due(ctx, t0.Add(time.Minute))

	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.ID, due[0].ID)
	assert.Equal(t, late.ID, due[1].ID)
	for _, a := range due {
		assert.Equal(t, core.ActionInFlight, a.Status)
		assert.True(t, a.LeaseExpiry.After(t0))
	}
}

func TestInMemoryScheduler_Due_EqualDueTimes_StableBySequence(t *testing.T) {
	s := NewInMemoryScheduler()
	ctx := context.Background()

	first, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	require.NoError(t, err)
	second, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-2").Due(t0).Build())
	require.NoError(t, err)

	due, err := s.Due(ctx, t0)

	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, first.ID, due[0].ID)
	assert.Equal(t, second.ID, due[1].ID)
}

func TestInMemoryScheduler_Due_LeasedActionNotYieldedTwice(t *testing.T) {
	s := NewInMemoryScheduler()
	ctx := context.Background()

	_, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	require.NoError(t, err)

	first, err := s.Due(ctx, t0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Within the lease window the action stays invisible.
	second, err := s.Due(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestInMemoryScheduler_Due_ReclaimsExpiredLease(t *testing.T) {
	s := NewInMemoryScheduler(func(o *Options) {
		o.LeaseTimeout = 5 * time.Minute
	})
	ctx := context.Background()

	a, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	require.NoError(t, err)

	_, err = s.Due(ctx, t0)
	require.NoError(t, err)

	// The worker never completed; after the lease expires the action is
	// yielded again.
	reclaimed, err := s.Due(ctx, t0.Add(6*time.Minute))
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, a.ID, reclaimed[0].ID)
}

func TestInMemoryScheduler_Due_ConcurrentDrains_NoDoubleYield(t *testing.T) {
	s := NewInMemoryScheduler()
	ctx := context.Background()

	const n = 50
	for i := 0; i < n; i++ {
		_, err := s.Schedule(ctx, core.ScheduledAction{
			LeadID: core.NewID(),
			Kind:   core.ActionFollowUp,
			Due:    t0,
		})
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			due, err := s.Due(ctx, t0)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, a := range due {
				seen[a.ID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "action %s yielded more than once", id)
	}
}

func TestInMemoryScheduler_Complete_Delivered_FreesLeadSlot(t *testing.T) {
	s := NewInMemoryScheduler()
	ctx := context.Background()

	a, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	require.NoError(t, err)
	_, err = s.Due(ctx, t0)
	require.NoError(t, err)

	settled, err := s.Complete(ctx, a.ID, core.Outcome{Delivered: true})
	require.NoError(t, err)
	assert.Equal(t, core.ActionDone, settled.Status)

	// The lead can be scheduled again.
	_, err = s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0.Add(time.Hour)).Build())
	assert.NoError(t, err)

	_, ok, err := s.PendingFor(ctx, "lead-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInMemoryScheduler_Complete_Failure_ReschedulesWithBackoff(t *testing.T) {
	now := t0
	s := NewInMemoryScheduler(func(o *Options) {
		o.Now = func() time.Time { return now }
		o.Backoff = func(attempt int) time.Duration { return time.Duration(attempt) * time.Minute }
	})
	ctx := context.Background()

	a, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	require.NoError(t, err)
	_, err = s.Due(ctx, t0)
	require.NoError(t, err)

	settled, err := s.Complete(ctx, a.ID, core.Outcome{Reason: "connection refused"})
	require.NoError(t, err)
	assert.Equal(t, core.ActionPending, settled.Status)
	assert.Equal(t, 1, settled.Attempt)
	assert.Equal(t, t0.Add(time.Minute), settled.Due)

	// Still occupies the lead's slot while retrying.
	_, err = s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	assert.ErrorIs(t, err, core.ErrDuplicatePending)
}

func TestInMemoryScheduler_Complete_PermanentOutcome_FailsImmediately(t *testing.T) {
	s := NewInMemoryScheduler()
	ctx := context.Background()

	a, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	require.NoError(t, err)
	_, err = s.Due(ctx, t0)
	require.NoError(t, err)

	settled, err := s.Complete(ctx, a.ID, core.Outcome{Reason: "lead not found", Permanent: true})
	require.NoError(t, err)
	assert.Equal(t, core.ActionFailed, settled.Status)

	// Slot is free again.
	_, ok, err := s.PendingFor(ctx, "lead-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryScheduler_Complete_RetryCeiling_FailsForGood(t *testing.T) {
	now := t0
	s := NewInMemoryScheduler(func(o *Options) {
		o.RetryCeiling = 3
		o.Now = func() time.Time { return now }
		o.Backoff = func(int) time.Duration { return 0 }
	})
	ctx := context.Background()

	a, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	require.NoError(t, err)

	var settled core.ScheduledAction
	for i := 0; i < 3; i++ {
		due, err := s.Due(ctx, now)
		require.NoError(t, err)
		require.Len(t, due, 1)
		settled, err = s.Complete(ctx, a.ID, core.Outcome{Reason: "timeout"})
		require.NoError(t, err)
		now = now.Add(time.Minute)
	}

	assert.Equal(t, core.ActionFailed, settled.Status)
	assert.Equal(t, 3, settled.Attempt)
}

func TestInMemoryScheduler_Complete_StaleSettle_DoesNotFreeNewerAction(t *testing.T) {
	s := NewInMemoryScheduler()
	ctx := context.Background()

	a1, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	require.NoError(t, err)
	_, err = s.Due(ctx, t0)
	require.NoError(t, err)

	// The lead is closed while a1 is in flight: a1 is settled permanently
	// and a close-out takes over the slot.
	_, err = s.Complete(ctx, a1.ID, core.Outcome{Reason: "superseded by close", Permanent: true})
	require.NoError(t, err)
	closeOut, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Kind(core.ActionCloseOut).Due(t0).Build())
	require.NoError(t, err)

	// The delivery worker settles the stale a1 afterwards.
	settled, err := s.Complete(ctx, a1.ID, core.Outcome{Delivered: true})
	require.NoError(t, err)
	assert.Equal(t, core.ActionFailed, settled.Status)

	// The close-out still owns the lead's slot.
	pending, ok, err := s.PendingFor(ctx, "lead-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, closeOut.ID, pending.ID)

	_, err = s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	assert.ErrorIs(t, err, core.ErrDuplicatePending)

	due, err := s.Due(ctx, t0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, closeOut.ID, due[0].ID)
}

func TestInMemoryScheduler_Complete_FinalizedActionStaysFinal(t *testing.T) {
	s := NewInMemoryScheduler()
	ctx := context.Background()

	a, err := s.Schedule(ctx, testutil.NewActionBuilder("lead-1").Due(t0).Build())
	require.NoError(t, err)
	_, err = s.Due(ctx, t0)
	require.NoError(t, err)

	first, err := s.Complete(ctx, a.ID, core.Outcome{Delivered: true})
	require.NoError(t, err)
	assert.Equal(t, core.ActionDone, first.Status)

	// A duplicate failure settle neither resurrects the action nor counts
	// an attempt.
	second, err := s.Complete(ctx, a.ID, core.Outcome{Reason: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, core.ActionDone, second.Status)
	assert.Equal(t, first.Attempt, second.Attempt)
}

func TestInMemoryScheduler_Complete_UnknownAction(t *testing.T) {
	s := NewInMemoryScheduler()

	_, err := s.Complete(context.Background(), "no-such-action", core.Outcome{Delivered: true})

	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInMemoryScheduler_PendingFor_NoActiveAction(t *testing.T) {
	s := NewInMemoryScheduler()

	_, ok, err := s.PendingFor(context.Background(), "lead-1")

	require.NoError(t, err)
	assert.False(t, ok)
}
