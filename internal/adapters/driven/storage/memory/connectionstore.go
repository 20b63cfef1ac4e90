package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

// Ensure ConnectionStore implements the interface.
var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// ConnectionStore is an in-memory implementation of driven.ConnectionStore.
type ConnectionStore struct {
	mu          sync.RWMutex
	connections map[string]domain.Connection
}

// NewConnectionStore creates a new in-memory connection store.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{
		connections: make(map[string]domain.Connection),
	}
}

// Save stores or updates a connection.
func (s *ConnectionStore) Save(_ context.Context, conn domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.ID] = cloneConnection(conn)
	return nil
}

// Get retrieves a connection by ID.
func (s *ConnectionStore) Get(_ context.Context, id string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := cloneConnection(conn)
	return &c, nil
}

// List returns connections matching the filter, oldest first.
func (s *ConnectionStore) List(_ context.Context, filter domain.ConnectionFilter) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		if filter.OrganizationID != "" && conn.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.ProviderType != "" && conn.ProviderType != filter.ProviderType {
			continue
		}
		if filter.ActiveOnly && !conn.IsActive {
			continue
		}
		result = append(result, cloneConnection(conn))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateSyncStatus applies a sync bookkeeping update under the store lock.
func (s *ConnectionStore) UpdateSyncStatus(_ context.Context, id string, update domain.ConnectionSyncUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return domain.ErrNotFound
	}
	update.Apply(&conn)
	s.connections[id] = conn
	return nil
}

func cloneConnection(c domain.Connection) domain.Connection {
	if c.Credentials != nil {
		creds := make(map[string]string, len(c.Credentials))
		for k, v := range c.Credentials {
			creds[k] = v
		}
		c.Credentials = creds
	}
	if c.SyncConfig.EntityTypes != nil {
		c.SyncConfig.EntityTypes = append([]domain.EntityType(nil), c.SyncConfig.EntityTypes...)
	}
	return c
}
