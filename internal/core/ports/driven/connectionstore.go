package driven

import (
	"context"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// ConnectionStore persists connections. Connections are never hard-deleted;
// deactivation clears IsActive.
type ConnectionStore interface {
	// Save stores or updates a connection.
	Save(ctx context.Context, conn domain.Connection) error

	// Get retrieves a connection by ID.
	// Returns ErrNotFound if the connection does not exist.
	Get(ctx context.Context, id string) (*domain.Connection, error)

	// List returns connections matching the filter, ordered by creation time.
	List(ctx context.Context, filter domain.ConnectionFilter) ([]domain.Connection, error)

	// UpdateSyncStatus writes only the status, last error and last sync time.
	// Returns ErrNotFound if the connection does not exist.
	UpdateSyncStatus(ctx context.Context, id string, update domain.ConnectionSyncUpdate) error
}
