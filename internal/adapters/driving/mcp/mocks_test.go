package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// mockEntityReader is a mock implementation of driving.EntityReader.
type mockEntityReader struct {
	entities []domain.CanonicalEntity
	entity   *domain.CanonicalEntity
	stats    *domain.EntityStats
	err      error

	lastScope  driving.Scope
	lastType   domain.EntityType
	lastPage   driving.PageRequest
	lastKey    string
	lastWithin time.Duration
}

func (m *mockEntityReader) GetAll(
	_ context.Context,
	scope driving.Scope,
	entityType domain.EntityType,
	page driving.PageRequest,
) ([]domain.CanonicalEntity, error) {
	m.lastScope, m.lastType, m.lastPage = scope, entityType, page
	return m.entities, m.err
}

func (m *mockEntityReader) GetByNaturalKey(
	_ context.Context,
	scope driving.Scope,
	entityType domain.EntityType,
	naturalKey string,
) (*domain.CanonicalEntity, error) {
	m.lastScope, m.lastType, m.lastKey = scope, entityType, naturalKey
	return m.entity, m.err
}

func (m *mockEntityReader) VehiclesWithLiftgate(_ context.Context, scope driving.Scope) ([]domain.CanonicalEntity, error) {
	m.lastScope = scope
	return m.entities, m.err
}

func (m *mockEntityReader) TruckersWithExpiringDocuments(
	_ context.Context,
	scope driving.Scope,
	within time.Duration,
) ([]domain.CanonicalEntity, error) {
	m.lastScope, m.lastWithin = scope, within
	return m.entities, m.err
}

func (m *mockEntityReader) UnpaidInvoices(_ context.Context, scope driving.Scope) ([]domain.CanonicalEntity, error) {
	m.lastScope = scope
	return m.entities, m.err
}

func (m *mockEntityReader) GetStats(
	_ context.Context,
	scope driving.Scope,
	entityType domain.EntityType,
) (*domain.EntityStats, error) {
	m.lastScope, m.lastType = scope, entityType
	return m.stats, m.err
}

// mockConnectionService is a mock implementation of driving.ConnectionService.
type mockConnectionService struct {
	connections []domain.Connection
	health      *domain.ConnectionHealth
	providers   []domain.ProviderDescriptor
	err         error

	lastOrg string
}

func (m *mockConnectionService) Register(
	_ context.Context,
	_ driving.RegisterConnectionRequest,
) (*domain.Connection, error) {
	return nil, m.err
}

func (m *mockConnectionService) Update(
	_ context.Context,
	_ driving.UpdateConnectionRequest,
) (*domain.Connection, error) {
	return nil, m.err
}

func (m *mockConnectionService) Get(_ context.Context, _ string) (*domain.Connection, error) {
	return nil, m.err
}

func (m *mockConnectionService) List(_ context.Context, organizationID string) ([]domain.Connection, error) {
	m.lastOrg = organizationID
	return m.connections, m.err
}

func (m *mockConnectionService) Deactivate(_ context.Context, _ string) error {
	return m.err
}

func (m *mockConnectionService) Reset(_ context.Context, _ string) error {
	return m.err
}

func (m *mockConnectionService) Health(
	_ context.Context,
	organizationID, _ string,
) (*domain.ConnectionHealth, error) {
	m.lastOrg = organizationID
	return m.health, m.err
}

func (m *mockConnectionService) Providers() []domain.ProviderDescriptor {
	return m.providers
}
