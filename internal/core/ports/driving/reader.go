package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// Scope is the tenant filter every read carries.
type Scope struct {
	// OrganizationID is required.
	OrganizationID string

	// ConnectionID optionally narrows to one connection.
	ConnectionID string
}

// PageRequest bounds a listing. A zero Limit uses the reader default.
type PageRequest struct {
	Limit  int
	Offset int
}

// EntityReader is the tenant-scoped query layer over the data lake.
// It never mutates.
type EntityReader interface {
	// GetAll lists entities of one type.
	GetAll(ctx context.Context, scope Scope, entityType domain.EntityType, page PageRequest) ([]domain.CanonicalEntity, error)

	// GetByNaturalKey fetches one entity. The scope must name a connection.
	GetByNaturalKey(ctx context.Context, scope Scope, entityType domain.EntityType, naturalKey string) (*domain.CanonicalEntity, error)

	// VehiclesWithLiftgate lists vehicles equipped with a liftgate.
	VehiclesWithLiftgate(ctx context.Context, scope Scope) ([]domain.CanonicalEntity, error)

	// TruckersWithExpiringDocuments lists truckers with at least one document
	// expiring within the window, or already expired.
	TruckersWithExpiringDocuments(ctx context.Context, scope Scope, within time.Duration) ([]domain.CanonicalEntity, error)

	// UnpaidInvoices lists outstanding invoices.
	UnpaidInvoices(ctx context.Context, scope Scope) ([]domain.CanonicalEntity, error)

	// GetStats summarises one entity type.
	GetStats(ctx context.Context, scope Scope, entityType domain.EntityType) (*domain.EntityStats, error)
}
