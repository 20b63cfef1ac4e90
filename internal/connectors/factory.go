package connectors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.ConnectorFactory = (*Factory)(nil)

type registration struct {
	descriptor domain.ProviderDescriptor
	builder    driven.ConnectorBuilder
}

// Factory builds connectors from a lookup table keyed by provider type.
type Factory struct {
	mu        sync.RWMutex
	providers map[string]registration
}

// NewFactory creates an empty connector factory.
func NewFactory() *Factory {
	return &Factory{providers: make(map[string]registration)}
}

// Register adds a builder for descriptor.ID. A later registration replaces
// an earlier one.
func (f *Factory) Register(descriptor domain.ProviderDescriptor, builder driven.ConnectorBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[descriptor.ID] = registration{descriptor: descriptor, builder: builder}
}

// Create returns a Connector for the connection.
func (f *Factory) Create(ctx context.Context, conn domain.Connection) (driven.Connector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	reg, ok := f.providers[conn.ProviderType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: provider %q", domain.ErrUnsupportedType, conn.ProviderType)
	}

	connector, err := reg.builder(conn)
	if err != nil {
		return nil, fmt.Errorf("create %s connector for %s: %w", conn.ProviderType, conn.ID, err)
	}
	return connector, nil
}

// SupportedTypes returns the registered provider types in sorted order.
func (f *Factory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.providers))
	for t := range f.providers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Describe returns the descriptor of a provider type.
func (f *Factory) Describe(providerType string) (*domain.ProviderDescriptor, error) {
	f.mu.RLock()
	reg, ok := f.providers[providerType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: provider %q", domain.ErrUnsupportedType, providerType)
	}
	desc := reg.descriptor
	return &desc, nil
}
