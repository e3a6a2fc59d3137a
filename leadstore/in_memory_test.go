package leadstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/nurturemesh/core"
	"github.com/hupe1980/nurturemesh/internal/testutil"
)

// Interface compliance (compile-time assertion)
var _ core.LeadStore = (*InMemoryStore)(nil)

func TestInMemoryStore_Get_NotFound(t *testing.T) {
	s := NewInMemoryStore()

	_, err := s.Get(context.Background(), "nope")

	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInMemoryStore_Upsert_InsertThenReplace(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	lead := testutil.NewLeadBuilder("lead-1").Build()
	stored, err := s.Upsert(ctx, lead)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.False(t, stored.CreatedAt.IsZero())

	lead.Company = "New Venture GmbH"
	replaced, err := s.Upsert(ctx, lead)
	require.NoError(t, err)
	assert.Equal(t, int64(2), replaced.Version)
	assert.Equal(t, "New Venture GmbH", replaced.Company)
	assert.Equal(t, stored.CreatedAt, replaced.CreatedAt)
}

func TestInMemoryStore_Get_ReturnsIsolatedClone(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_, err := s.Upsert(ctx, testutil.NewLeadBuilder("lead-1").PainPoints("churn").Build())
	require.NoError(t, err)

	got, err := s.Get(ctx, "lead-1")
	require.NoError(t, err)
	got.PainPoints[0] = "mutated"
	got.Stage = core.StageLost

	fresh, err := s.Get(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "churn", fresh.PainPoints[0])
	assert.Equal(t, core.StageNew, fresh.Stage)
}

func TestInMemoryStore_AppendHistory_RequiresExistingLead(t *testing.T) {
	s := NewInMemoryStore()

	_, err := s.AppendHistory(context.Background(), "nope", core.HistoryEvent{Kind: core.EventEmailOpen})

	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInMemoryStore_AppendHistory_AppendsAndBumpsVersion(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_, err := s.Upsert(ctx, testutil.NewLeadBuilder("lead-1").Build())
	require.NoError(t, err)

	updated, err := s.AppendHistory(ctx, "lead-1", core.HistoryEvent{
		ID:        "ev-1",
		Kind:      core.EventEmailReply,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, updated.History, 1)
	assert.Equal(t, core.EventEmailReply, updated.History[0].Kind)
	assert.Equal(t, int64(2), updated.Version)
}

func TestInMemoryStore_Mutate_CreatesMissingLead(t *testing.T) {
	s := NewInMemoryStore()

	lead, err := s.Mutate(context.Background(), "lead-1", func(cur *core.Lead) error {
		assert.Equal(t, "lead-1", cur.ID)
		assert.Equal(t, core.StageNew, cur.Stage)
		cur.Email = "new@example.com"
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", lead.Email)
	assert.Equal(t, int64(1), lead.Version)
}

func TestInMemoryStore_Mutate_ErrorDiscardsWrite(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_, err := s.Upsert(ctx, testutil.NewLeadBuilder("lead-1").Build())
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.Mutate(ctx, "lead-1", func(cur *core.Lead) error {
		cur.Stage = core.StageLost
		return boom
	})
	assert.ErrorIs(t, err, boom)

	lead, err := s.Get(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, core.StageNew, lead.Stage)
	assert.Equal(t, int64(1), lead.Version)
}

func TestInMemoryStore_Mutate_ConcurrentIncrementsSerialize(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Mutate(ctx, "lead-1", func(cur *core.Lead) error {
				cur.History = append(cur.History, core.HistoryEvent{Kind: core.EventNote})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	lead, err := s.Get(ctx, "lead-1")
	require.NoError(t, err)
	assert.Len(t, lead.History, n)
	assert.Equal(t, int64(n), lead.Version)
}
