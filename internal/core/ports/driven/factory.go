package driven

import (
	"context"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// ConnectorBuilder creates a Connector for a connection.
type ConnectorBuilder func(conn domain.Connection) (Connector, error)

// ConnectorFactory creates connectors from connection configuration.
// It is a lookup table keyed by provider type.
type ConnectorFactory interface {
	// Create returns a Connector for the given connection.
	// Returns ErrUnsupportedType if the provider type is unknown.
	Create(ctx context.Context, conn domain.Connection) (Connector, error)

	// Register adds a connector builder for the given provider type.
	Register(descriptor domain.ProviderDescriptor, builder ConnectorBuilder)

	// SupportedTypes returns all registered provider types.
	SupportedTypes() []string

	// Describe returns the descriptor of a provider type.
	// Returns ErrUnsupportedType if the provider type is unknown.
	Describe(providerType string) (*domain.ProviderDescriptor, error)
}
