package httpapi

import (
	"context"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

type mockConnections struct {
	connections []domain.Connection
	health      *domain.ConnectionHealth
	providers   []domain.ProviderDescriptor
	err         error
	lastOrg     string
}

func (m *mockConnections) Register(_ context.Context, _ driving.RegisterConnectionRequest) (*domain.Connection, error) {
	return nil, m.err
}

func (m *mockConnections) Update(_ context.Context, _ driving.UpdateConnectionRequest) (*domain.Connection, error) {
	return nil, m.err
}

func (m *mockConnections) Get(_ context.Context, _ string) (*domain.Connection, error) {
	return nil, m.err
}

func (m *mockConnections) List(_ context.Context, organizationID string) ([]domain.Connection, error) {
	m.lastOrg = organizationID
	return m.connections, m.err
}

func (m *mockConnections) Deactivate(_ context.Context, _ string) error { return m.err }

func (m *mockConnections) Reset(_ context.Context, _ string) error { return m.err }

func (m *mockConnections) Health(_ context.Context, organizationID, _ string) (*domain.ConnectionHealth, error) {
	m.lastOrg = organizationID
	return m.health, m.err
}

func (m *mockConnections) Providers() []domain.ProviderDescriptor { return m.providers }

type mockSync struct {
	run     *domain.SyncRun
	runs    []domain.SyncRun
	status  []driving.SyncStatus
	err     error
	lastReq domain.RunRequest
	lastCad domain.Cadence
	lastLim int
}

func (m *mockSync) Run(_ context.Context, req domain.RunRequest) (*domain.SyncRun, error) {
	m.lastReq = req
	return m.run, m.err
}

func (m *mockSync) RunConnection(_ context.Context, _ string, cadence domain.Cadence) ([]domain.SyncRun, error) {
	m.lastCad = cadence
	return m.runs, m.err
}

func (m *mockSync) Status(_ context.Context, _ string) ([]driving.SyncStatus, error) {
	return m.status, nil
}

func (m *mockSync) History(_ context.Context, _ string, limit int) ([]domain.SyncRun, error) {
	m.lastLim = limit
	return m.runs, m.err
}

type mockBridge struct {
	delivery  *domain.EventDelivery
	dead      []domain.EventDelivery
	redriven  int
	err       error
	lastEvent domain.DomainEvent
	lastKey   string
	lastOrg   string
}

func (m *mockBridge) Handle(_ context.Context, event domain.DomainEvent) (*domain.EventDelivery, error) {
	m.lastEvent = event
	return m.delivery, m.err
}

func (m *mockBridge) DeadLetters(_ context.Context, organizationID string) ([]domain.EventDelivery, error) {
	m.lastOrg = organizationID
	return m.dead, m.err
}

func (m *mockBridge) Redrive(_ context.Context, key string) (*domain.EventDelivery, error) {
	m.lastKey = key
	return m.delivery, m.err
}

func (m *mockBridge) RedriveAll(_ context.Context) (int, error) {
	return m.redriven, m.err
}

type mockReader struct {
	entities  []domain.CanonicalEntity
	err       error
	lastScope driving.Scope
	lastPage  driving.PageRequest
}

func (m *mockReader) GetAll(
	_ context.Context,
	scope driving.Scope,
	_ domain.EntityType,
	page driving.PageRequest,
) ([]domain.CanonicalEntity, error) {
	m.lastScope, m.lastPage = scope, page
	return m.entities, m.err
}

func (m *mockReader) GetByNaturalKey(
	_ context.Context,
	_ driving.Scope,
	_ domain.EntityType,
	_ string,
) (*domain.CanonicalEntity, error) {
	return nil, m.err
}

func (m *mockReader) VehiclesWithLiftgate(_ context.Context, _ driving.Scope) ([]domain.CanonicalEntity, error) {
	return m.entities, m.err
}

func (m *mockReader) TruckersWithExpiringDocuments(
	_ context.Context,
	_ driving.Scope,
	_ time.Duration,
) ([]domain.CanonicalEntity, error) {
	return m.entities, m.err
}

func (m *mockReader) UnpaidInvoices(_ context.Context, _ driving.Scope) ([]domain.CanonicalEntity, error) {
	return m.entities, m.err
}

func (m *mockReader) GetStats(_ context.Context, _ driving.Scope, _ domain.EntityType) (*domain.EntityStats, error) {
	return nil, m.err
}
