package driving

import (
	"context"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// ConnectionService manages the connection lifecycle.
type ConnectionService interface {
	// Register creates a new active connection.
	// Returns ErrDuplicateConnection if the organization already has an active
	// connection for the provider and MultiHomed is false.
	Register(ctx context.Context, req RegisterConnectionRequest) (*domain.Connection, error)

	// Update changes the name, credentials or sync configuration.
	Update(ctx context.Context, req UpdateConnectionRequest) (*domain.Connection, error)

	// Get retrieves a connection by ID.
	Get(ctx context.Context, id string) (*domain.Connection, error)

	// List returns the connections of an organization.
	List(ctx context.Context, organizationID string) ([]domain.Connection, error)

	// Deactivate stops further syncs. Runs in flight stop after their current page.
	Deactivate(ctx context.Context, id string) error

	// Reset clears the error state so a suspended connection syncs again.
	Reset(ctx context.Context, id string) error

	// Health returns status, last sync and last error for a connection.
	Health(ctx context.Context, organizationID, connectionID string) (*domain.ConnectionHealth, error)

	// Providers lists the provider types that can be registered.
	Providers() []domain.ProviderDescriptor
}

// RegisterConnectionRequest holds the fields for a new connection.
type RegisterConnectionRequest struct {
	OrganizationID string
	ProviderType   string
	Name           string
	Credentials    map[string]string
	SyncConfig     domain.SyncConfig
	MultiHomed     bool
}

// UpdateConnectionRequest holds optional changes. Nil fields are left untouched.
type UpdateConnectionRequest struct {
	ID          string
	Name        *string
	Credentials map[string]string
	SyncConfig  *domain.SyncConfig
}
