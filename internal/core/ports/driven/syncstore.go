package driven

import (
	"context"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// SyncStateStore persists sync progress, one row per (connection, entity type).
// Only the sync orchestrator writes to it.
type SyncStateStore interface {
	// Save stores or updates sync state.
	Save(ctx context.Context, state domain.SyncState) error

	// Get retrieves sync state for a (connection, entity type).
	// Returns ErrNotFound if no run has persisted state yet.
	Get(ctx context.Context, connectionID string, entityType domain.EntityType) (*domain.SyncState, error)

	// List returns every sync state of a connection.
	List(ctx context.Context, connectionID string) ([]domain.SyncState, error)

	// Delete removes all sync state for a connection.
	Delete(ctx context.Context, connectionID string) error
}
