package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// EntityStore persists canonical entities, one logical collection per
// entity type, unique on (connection, natural key).
//
// Only the data lake writer mutates entities. Readers use Get and Query.
type EntityStore interface {
	// Get retrieves an entity by identity.
	// Returns ErrNotFound if the entity does not exist.
	Get(ctx context.Context, entityType domain.EntityType, connectionID, naturalKey string) (*domain.CanonicalEntity, error)

	// Insert stores a new entity.
	// Returns ErrAlreadyExists if the identity is taken.
	Insert(ctx context.Context, entity *domain.CanonicalEntity) error

	// CompareAndSwap replaces an entity only if the stored checksum and
	// version still equal the expected values.
	// Returns ErrWriteConflict on mismatch.
	CompareAndSwap(ctx context.Context, entity *domain.CanonicalEntity, expectedChecksum string, expectedVersion int64) error

	// Touch refreshes SyncedAt only if the stored checksum equals checksum.
	// Returns ErrWriteConflict on mismatch.
	Touch(ctx context.Context, entityType domain.EntityType, connectionID, naturalKey, checksum string, syncedAt time.Time) error

	// Query returns entities in the query scope ordered by natural key.
	// Returns ErrTenantScopeRequired if the query has no organization.
	Query(ctx context.Context, query domain.EntityQuery) ([]domain.CanonicalEntity, error)

	// DeleteStale removes a connection's entities of one type last seen before cutoff.
	// Returns the number of deleted entities.
	DeleteStale(ctx context.Context, entityType domain.EntityType, connectionID string, cutoff time.Time) (int, error)
}
