package leadstore

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/nurturemesh/core"
)

// InMemoryStore is a volatile LeadStore keeping lead records in a process
// local map. Each returned lead is cloned to prevent external mutation of
// internal state. Per-lead writes serialize on a dedicated lock so two
// concurrent updates to the same lead never interleave partial field
// writes, while distinct leads proceed in parallel.
type InMemoryStore struct {
	mu    sync.RWMutex
	leads map[string]*core.Lead
	locks map[string]*sync.Mutex
	now   func() time.Time
}

// NewInMemoryStore constructs an empty in-memory lead store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		leads: make(map[string]*core.Lead),
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (s *InMemoryStore) leadLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Get returns a clone of the lead or core.ErrNotFound.
func (s *InMemoryStore) Get(ctx context.Context, id string) (core.Lead, error) {
	if err := ctx.Err(); err != nil {
		return core.Lead{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return core.Lead{}, core.ErrNotFound
	}
	return lead.Clone(), nil
}

// Upsert inserts or replaces the lead, idempotent by ID, bumping Version.
func (s *InMemoryStore) Upsert(ctx context.Context, lead core.Lead) (core.Lead, error) {
	return s.Mutate(ctx, lead.ID, func(cur *core.Lead) error {
		version := cur.Version
		createdAt := cur.CreatedAt
		*cur = lead.Clone()
		cur.Version = version
		if !createdAt.IsZero() {
			cur.CreatedAt = createdAt
		}
		return nil
	})
}

// AppendHistory appends an event to an existing lead's history.
func (s *InMemoryStore) AppendHistory(ctx context.Context, id string, ev core.HistoryEvent) (core.Lead, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return core.Lead{}, err
	}
	return s.Mutate(ctx, id, func(cur *core.Lead) error {
		cur.History = append(cur.History, ev)
		return nil
	})
}

// Mutate runs fn on a clone of the current record under the per-lead lock
// and persists the clone only when fn succeeds, so a failing fn leaves the
// lead fully unchanged. A missing lead is presented as a zero record with
// the given ID.
func (s *InMemoryStore) Mutate(ctx context.Context, id string, fn func(lead *core.Lead) error) (core.Lead, error) {
	if err := ctx.Err(); err != nil {
		return core.Lead{}, err
	}
	lock := s.leadLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	stored, ok := s.leads[id]
	s.mu.RUnlock()

	var work core.Lead
	if ok {
		work = stored.Clone()
	} else {
		work = core.Lead{ID: id, Stage: core.StageNew, CreatedAt: s.now()}
	}

	if err := fn(&work); err != nil {
		return core.Lead{}, err
	}

	work.ID = id
	work.Version++
	work.UpdatedAt = s.now()
	if work.CreatedAt.IsZero() {
		work.CreatedAt = work.UpdatedAt
	}

	cp := work.Clone()
	s.mu.Lock()
	s.leads[id] = &cp
	s.mu.Unlock()
	return work.Clone(), nil
}
