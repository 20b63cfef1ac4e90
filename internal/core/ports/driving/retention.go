package driving

import "context"

// RetentionService deletes records no longer present at the provider.
type RetentionService interface {
	// Cleanup deletes stale entities and prunes the run log.
	Cleanup(ctx context.Context) (*CleanupReport, error)
}

// CleanupReport counts what a cleanup removed.
type CleanupReport struct {
	EntitiesDeleted int
	// ByType maps entity type to deleted count.
	ByType map[string]int
	// Skipped counts (connection, entity type) pairs without a completed full pass.
	Skipped int
}
