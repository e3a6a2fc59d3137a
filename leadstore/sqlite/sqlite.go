// Package sqlite provides a durable LeadStore backed by SQLite. Lead
// records are stored as JSON documents alongside a version column; SQLite's
// write transaction lock provides the per-lead serialization guarantee.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/nurturemesh/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);`

// Store is a SQLite-backed core.LeadStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates (if needed) and opens the lead database at dir/leads.db.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	// Immediate transactions make concurrent mutators queue on the write
	// lock up front instead of failing at commit.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", filepath.Join(dir, "leads.db"))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the lead or core.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (core.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM leads WHERE id = ?`, id)
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Lead{}, core.ErrNotFound
		}
		return core.Lead{}, core.Transient("leadstore.get", err)
	}
	var lead core.Lead
	if err := json.Unmarshal([]byte(data), &lead); err != nil {
		return core.Lead{}, fmt.Errorf("decode lead %s: %w", id, err)
	}
	return lead, nil
}

// Upsert inserts or replaces the lead, idempotent by ID, bumping Version.
func (s *Store) Upsert(ctx context.Context, lead core.Lead) (core.Lead, error) {
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
func (s *Store) AppendHistory(ctx context.Context, id string, ev core.HistoryEvent) (core.Lead, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return core.Lead{}, err
	}
	return s.Mutate(ctx, id, func(cur *core.Lead) error {
		cur.History = append(cur.History, ev)
		return nil
	})
}

// Mutate loads, transforms and writes the lead inside one immediate write
// transaction, so concurrent mutators serialize rather than race to
// commit. A missing lead is presented to fn as a zero record with the
// given ID; an fn error rolls the transaction back leaving the lead fully
// unchanged.
func (s *Store) Mutate(ctx context.Context, id string, fn func(lead *core.Lead) error) (core.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Lead{}, core.Transient("leadstore.mutate", err)
	}
	defer func() { _ = tx.Rollback() }()

	var work core.Lead
	row := tx.QueryRowContext(ctx, `SELECT data FROM leads WHERE id = ?`, id)
	var data string
	switch err := row.Scan(&data); {
	case errors.Is(err, sql.ErrNoRows):
		work = core.Lead{ID: id, Stage: core.StageNew, CreatedAt: s.now()}
	case err != nil:
		return core.Lead{}, core.Transient("leadstore.mutate", err)
	default:
		if err := json.Unmarshal([]byte(data), &work); err != nil {
			return core.Lead{}, fmt.Errorf("decode lead %s: %w", id, err)
		}
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

	encoded, err := json.Marshal(work)
	if err != nil {
		return core.Lead{}, fmt.Errorf("encode lead %s: %w", id, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO leads (id, data, version, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at`,
		id, string(encoded), work.Version, work.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return core.Lead{}, core.Transient("leadstore.mutate", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Lead{}, core.Transient("leadstore.mutate", err)
	}
	return work, nil
}
