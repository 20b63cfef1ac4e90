package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// SyncOrchestrator runs sync for (connection, entity type) pairs.
type SyncOrchestrator interface {
	// Run syncs one (connection, entity type) at the requested cadence.
	// Returns ErrSyncInProgress if a run for the pair is already active.
	Run(ctx context.Context, req domain.RunRequest) (*domain.SyncRun, error)

	// RunConnection syncs every entity type of a connection.
	RunConnection(ctx context.Context, connectionID string, cadence domain.Cadence) ([]domain.SyncRun, error)

	// Status returns live progress of the runs active on a connection.
	Status(ctx context.Context, connectionID string) ([]SyncStatus, error)

	// History returns recent runs for a connection, newest first.
	History(ctx context.Context, connectionID string, limit int) ([]domain.SyncRun, error)
}

// SyncStatus represents the current state of a sync operation.
type SyncStatus struct {
	// ConnectionID identifies the connection.
	ConnectionID string

	// EntityType identifies the collection being synced.
	EntityType domain.EntityType

	// Cadence is the cadence of the walk in progress.
	Cadence domain.Cadence

	// Running indicates if sync is currently in progress.
	Running bool

	// StartedAt is when the run began.
	StartedAt time.Time

	// PagesProcessed is the count of committed pages.
	PagesProcessed int

	// EntitiesUpserted counts inserted or updated entities.
	EntitiesUpserted int

	// EntitiesUnchanged counts entities whose checksum matched.
	EntitiesUnchanged int

	// ErrorCount is the number of errors encountered.
	ErrorCount int
}
