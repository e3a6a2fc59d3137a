package core

import (
	"context"
	"time"
)

// Registration advertises a capability of this system to the agent
// directory.
type Registration struct {
	Capability  string `json:"capability"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Description string `json:"description,omitempty"`
}

// CapabilityRecord is one advertiser returned by a discovery query.
// Records are ephemeral: FreshAt bounds their validity and a record older
// than the client's freshness window must be re-queried, never trusted
// from a cache.
type CapabilityRecord struct {
	Capability  string    `json:"capability"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Description string    `json:"description,omitempty"`
	FreshAt     time.Time `json:"fresh_at"`
}

// DirectoryClient registers this system's capabilities with an external
// agent directory and discovers other agents' advertised capabilities.
type DirectoryClient interface {
	// Register advertises the capability. Idempotent: re-registering the
	// same capability and address is a no-op success. ErrRejected when the
	// directory refuses the registration.
	Register(ctx context.Context, reg Registration) (CapabilityRecord, error)

	// Discover returns the current advertisers of the capability, possibly
	// empty. Results are advisory and time-bounded.
	Discover(ctx context.Context, capability string) ([]CapabilityRecord, error)
}
