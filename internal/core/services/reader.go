package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// Ensure EntityReader implements the interface.
var _ driving.EntityReader = (*EntityReader)(nil)

const (
	defaultReadLimit = 100
	maxReadLimit     = 1000
)

// EntityReader answers tenant-scoped queries over the data lake.
type EntityReader struct {
	store driven.EntityStore
	now   func() time.Time
}

// NewEntityReader creates a new reader.
func NewEntityReader(store driven.EntityStore) *EntityReader {
	return &EntityReader{store: store, now: time.Now}
}

// GetAll lists entities of one type.
func (r *EntityReader) GetAll(
	ctx context.Context,
	scope driving.Scope,
	entityType domain.EntityType,
	page driving.PageRequest,
) ([]domain.CanonicalEntity, error) {
	q, err := r.query(scope, entityType)
	if err != nil {
		return nil, err
	}
	q.Limit = page.Limit
	switch {
	case q.Limit <= 0:
		q.Limit = defaultReadLimit
	case q.Limit > maxReadLimit:
		q.Limit = maxReadLimit
	}
	if page.Offset > 0 {
		q.Offset = page.Offset
	}
	return r.store.Query(ctx, q)
}

// GetByNaturalKey fetches one entity from one connection.
func (r *EntityReader) GetByNaturalKey(
	ctx context.Context,
	scope driving.Scope,
	entityType domain.EntityType,
	naturalKey string,
) (*domain.CanonicalEntity, error) {
	if scope.OrganizationID == "" {
		return nil, domain.ErrTenantScopeRequired
	}
	if scope.ConnectionID == "" {
		return nil, domain.ErrConnectionRequired
	}
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: entity type %q", domain.ErrInvalidInput, entityType)
	}
	e, err := r.store.Get(ctx, entityType, scope.ConnectionID, naturalKey)
	if err != nil {
		return nil, err
	}
	if e.OrganizationID != scope.OrganizationID {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

// VehiclesWithLiftgate lists vehicles equipped with a liftgate.
func (r *EntityReader) VehiclesWithLiftgate(ctx context.Context, scope driving.Scope) ([]domain.CanonicalEntity, error) {
	return r.filter(ctx, scope, domain.EntityVehicles, func(f domain.EntityFields) bool {
		v, ok := f.(*domain.Vehicle)
		return ok && v.HasLiftgate
	})
}

// TruckersWithExpiringDocuments lists truckers with a document expiring
// within the window or already expired.
func (r *EntityReader) TruckersWithExpiringDocuments(
	ctx context.Context,
	scope driving.Scope,
	within time.Duration,
) ([]domain.CanonicalEntity, error) {
	if within < 0 {
		return nil, fmt.Errorf("%w: window must not be negative", domain.ErrInvalidInput)
	}
	now := r.now()
	return r.filter(ctx, scope, domain.EntityTruckers, func(f domain.EntityFields) bool {
		t, ok := f.(*domain.Trucker)
		return ok && len(t.ExpiringWithin(now, within)) > 0
	})
}

// UnpaidInvoices lists invoices with an outstanding balance.
func (r *EntityReader) UnpaidInvoices(ctx context.Context, scope driving.Scope) ([]domain.CanonicalEntity, error) {
	return r.filter(ctx, scope, domain.EntityInvoices, func(f domain.EntityFields) bool {
		inv, ok := f.(*domain.Invoice)
		return ok && inv.Outstanding()
	})
}

// GetStats summarises one entity type.
func (r *EntityReader) GetStats(ctx context.Context, scope driving.Scope, entityType domain.EntityType) (*domain.EntityStats, error) {
	q, err := r.query(scope, entityType)
	if err != nil {
		return nil, err
	}
	all, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	stats := &domain.EntityStats{
		Type:         entityType,
		Total:        len(all),
		ByStatus:     make(map[string]int),
		ByConnection: make(map[string]int),
	}
	for i := range all {
		e := &all[i]
		if status := domain.StatusOf(e.Fields); status != "" {
			stats.ByStatus[status]++
		}
		stats.ByConnection[e.ConnectionID]++
		if e.SyncedAt.After(stats.LastSyncedAt) {
			stats.LastSyncedAt = e.SyncedAt
		}
	}
	return stats, nil
}

func (r *EntityReader) query(scope driving.Scope, entityType domain.EntityType) (domain.EntityQuery, error) {
	if scope.OrganizationID == "" {
		return domain.EntityQuery{}, domain.ErrTenantScopeRequired
	}
	if !entityType.IsValid() {
		return domain.EntityQuery{}, fmt.Errorf("%w: entity type %q", domain.ErrInvalidInput, entityType)
	}
	return domain.EntityQuery{
		OrganizationID: scope.OrganizationID,
		ConnectionID:   scope.ConnectionID,
		Type:           entityType,
	}, nil
}

func (r *EntityReader) filter(
	ctx context.Context,
	scope driving.Scope,
	entityType domain.EntityType,
	keep func(domain.EntityFields) bool,
) ([]domain.CanonicalEntity, error) {
	q, err := r.query(scope, entityType)
	if err != nil {
		return nil, err
	}
	all, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CanonicalEntity, 0, len(all))
	for i := range all {
		if keep(all[i].Fields) {
			out = append(out, all[i])
		}
	}
	return out, nil
}
