package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

// Ensure SyncStateStore implements the interface.
var _ driven.SyncStateStore = (*SyncStateStore)(nil)

// SyncStateStore is an in-memory implementation of driven.SyncStateStore.
type SyncStateStore struct {
	mu     sync.RWMutex
	states map[string]domain.SyncState
}

// NewSyncStateStore creates a new in-memory sync state store.
func NewSyncStateStore() *SyncStateStore {
	return &SyncStateStore{
		states: make(map[string]domain.SyncState),
	}
}

// Save stores or updates sync state.
func (s *SyncStateStore) Save(_ context.Context, state domain.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[domain.LockKey(state.ConnectionID, state.EntityType)] = state
	return nil
}

// Get retrieves sync state for a (connection, entity type).
func (s *SyncStateStore) Get(_ context.Context, connectionID string, entityType domain.EntityType) (*domain.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[domain.LockKey(connectionID, entityType)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

// List returns every sync state of a connection ordered by entity type.
func (s *SyncStateStore) List(_ context.Context, connectionID string) ([]domain.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.SyncState
	for _, state := range s.states {
		if state.ConnectionID == connectionID {
			result = append(result, state)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityType < result[j].EntityType })
	return result, nil
}

// Delete removes all sync state for a connection.
func (s *SyncStateStore) Delete(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, state := range s.states {
		if state.ConnectionID == connectionID {
			delete(s.states, key)
		}
	}
	return nil
}
