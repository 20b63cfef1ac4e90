package driven

import (
	"context"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// RunLogStore persists the append-only sync run log.
type RunLogStore interface {
	// Start records a run in the running state.
	Start(ctx context.Context, run *domain.SyncRun) error

	// Finish records the final counters and status of a run.
	Finish(ctx context.Context, run *domain.SyncRun) error

	// Get retrieves a run by ID.
	// Returns ErrNotFound if the run does not exist.
	Get(ctx context.Context, id string) (*domain.SyncRun, error)

	// List returns recent runs for a connection.
	// Results are ordered by start time descending (most recent first).
	List(ctx context.Context, connectionID string, limit int) ([]domain.SyncRun, error)

	// Prune removes old runs beyond the retention limit.
	// Keeps the most recent 'keep' runs per (connection, entity type).
	Prune(ctx context.Context, keep int) error
}
