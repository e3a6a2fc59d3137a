package directory

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/nurturemesh/core"
)

// InMemoryDirectory is a process-local core.DirectoryClient. Registration
// and discovery resolve against a local table, which is enough for tests
// and single-process meshes where all collaborating agents live together.
type InMemoryDirectory struct {
	mu      sync.RWMutex
	records map[string]map[string]core.CapabilityRecord // capability -> address -> record
	now     func() time.Time
}

// NewInMemoryDirectory constructs an empty in-memory directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		records: make(map[string]map[string]core.CapabilityRecord),
		now:     time.Now,
	}
}

// Register records the advertiser. Re-registering the same capability and
// address refreshes the timestamp and succeeds as a no-op.
func (d *InMemoryDirectory) Register(_ context.Context, reg core.Registration) (core.CapabilityRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byAddr, ok := d.records[reg.Capability]
	if !ok {
		byAddr = make(map[string]core.CapabilityRecord)
		d.records[reg.Capability] = byAddr
	}
	rec := core.CapabilityRecord{
		Capability:  reg.Capability,
		Name:        reg.Name,
		Address:     reg.Address,
		Description: reg.Description,
		FreshAt:     d.now(),
	}
	byAddr[reg.Address] = rec
	return rec, nil
}

// Discover returns every advertiser of the capability with a refreshed
// timestamp, possibly empty.
func (d *InMemoryDirectory) Discover(_ context.Context, capability string) ([]core.CapabilityRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byAddr := d.records[capability]
	out := make([]core.CapabilityRecord, 0, len(byAddr))
	for _, rec := range byAddr {
		out = append(out, rec)
	}
	return out, nil
}

// Interface compliance (compile-time assertion)
var _ core.DirectoryClient = (*InMemoryDirectory)(nil)
