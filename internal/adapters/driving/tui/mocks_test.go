package tui

import (
	"context"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// MockConnectionService is a mock implementation of driving.ConnectionService.
type MockConnectionService struct {
	ListFunc   func(ctx context.Context, organizationID string) ([]domain.Connection, error)
	HealthFunc func(ctx context.Context, organizationID, connectionID string) (*domain.ConnectionHealth, error)
}

func (m *MockConnectionService) Register(context.Context, driving.RegisterConnectionRequest) (*domain.Connection, error) {
	return nil, domain.ErrInvalidInput
}

func (m *MockConnectionService) Update(context.Context, driving.UpdateConnectionRequest) (*domain.Connection, error) {
	return nil, domain.ErrInvalidInput
}

func (m *MockConnectionService) Get(context.Context, string) (*domain.Connection, error) {
	return nil, domain.ErrNotFound
}

func (m *MockConnectionService) List(ctx context.Context, organizationID string) ([]domain.Connection, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, organizationID)
	}
	return nil, nil
}

func (m *MockConnectionService) Deactivate(context.Context, string) error { return nil }

func (m *MockConnectionService) Reset(context.Context, string) error { return nil }

func (m *MockConnectionService) Health(ctx context.Context, organizationID, connectionID string) (*domain.ConnectionHealth, error) {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx, organizationID, connectionID)
	}
	return &domain.ConnectionHealth{ConnectionID: connectionID, OrganizationID: organizationID}, nil
}

func (m *MockConnectionService) Providers() []domain.ProviderDescriptor { return nil }

// MockSyncOrchestrator is a mock implementation of driving.SyncOrchestrator.
type MockSyncOrchestrator struct {
	RunConnectionFunc func(ctx context.Context, connectionID string, cadence domain.Cadence) ([]domain.SyncRun, error)
}

func (m *MockSyncOrchestrator) Run(context.Context, domain.RunRequest) (*domain.SyncRun, error) {
	return nil, domain.ErrInvalidInput
}

func (m *MockSyncOrchestrator) RunConnection(ctx context.Context, connectionID string, cadence domain.Cadence) ([]domain.SyncRun, error) {
	if m.RunConnectionFunc != nil {
		return m.RunConnectionFunc(ctx, connectionID, cadence)
	}
	return nil, nil
}

func (m *MockSyncOrchestrator) Status(context.Context, string) ([]driving.SyncStatus, error) {
	return nil, nil
}

func (m *MockSyncOrchestrator) History(context.Context, string, int) ([]domain.SyncRun, error) {
	return nil, nil
}

var (
	_ driving.ConnectionService = (*MockConnectionService)(nil)
	_ driving.SyncOrchestrator  = (*MockSyncOrchestrator)(nil)
)
