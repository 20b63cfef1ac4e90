package driven

import (
	"context"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// EventLedger records bridged events keyed by idempotency key.
type EventLedger interface {
	// Reserve atomically creates a pending entry.
	// Returns the stored entry and created=false if the key already exists.
	Reserve(ctx context.Context, delivery domain.EventDelivery) (stored *domain.EventDelivery, created bool, err error)

	// Save updates an existing entry.
	Save(ctx context.Context, delivery domain.EventDelivery) error

	// Get retrieves an entry by key.
	// Returns ErrNotFound if the key is unknown.
	Get(ctx context.Context, key string) (*domain.EventDelivery, error)

	// ListByStatus returns entries in a status, oldest first.
	// An empty organizationID lists every tenant.
	ListByStatus(ctx context.Context, organizationID string, status domain.DeliveryStatus) ([]domain.EventDelivery, error)
}
