package core

import "github.com/google/uuid"

// NewID returns a new random unique identifier. Used for leads ingested
// without a stable external id, history events and scheduled actions.
func NewID() string {
	return uuid.NewString()
}
