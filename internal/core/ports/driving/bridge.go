package driving

import (
	"context"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// EventBridge pushes internal domain events out to providers exactly once
// per idempotency key.
type EventBridge interface {
	// Handle delivers an event. A duplicate returns the recorded delivery
	// without calling the provider again.
	Handle(ctx context.Context, event domain.DomainEvent) (*domain.EventDelivery, error)

	// DeadLetters lists parked deliveries. An empty organizationID lists every tenant.
	DeadLetters(ctx context.Context, organizationID string) ([]domain.EventDelivery, error)

	// Redrive re-attempts one dead-lettered delivery.
	Redrive(ctx context.Context, key string) (*domain.EventDelivery, error)

	// RedriveAll re-attempts every dead-lettered delivery and returns how many succeeded.
	RedriveAll(ctx context.Context) (int, error)
}
