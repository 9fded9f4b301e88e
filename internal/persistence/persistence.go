// Package persistence provides the durable key-value slot the entity store
// writes through to on every mutation. Implementations can be file-based,
// Redis-backed, or in-memory; the store only depends on the Slot contract.
package persistence

import (
	"context"

	"roleplay-chat/core/internal/models"
)

// Slot is a single durable slot holding the store's full state.
// Load returns (nil, nil) when the slot has never been written.
// Save replaces the slot contents atomically; a reader never observes a
// partial write. Implementations must be safe for concurrent use.
type Slot interface {
	Load(ctx context.Context) (*models.StoreState, error)
	Save(ctx context.Context, state *models.StoreState) error
}
