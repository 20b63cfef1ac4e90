package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

// Ensure EntityStore implements the interface.
var _ driven.EntityStore = (*EntityStore)(nil)

// EntityStore is an in-memory implementation of driven.EntityStore.
// Entities are deep-copied on the way in and out.
type EntityStore struct {
	mu       sync.RWMutex
	entities map[string]domain.CanonicalEntity
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		entities: make(map[string]domain.CanonicalEntity),
	}
}

func entityKey(t domain.EntityType, connectionID, naturalKey string) string {
	return string(t) + "\x00" + connectionID + "\x00" + naturalKey
}

// Get retrieves an entity by identity.
func (s *EntityStore) Get(_ context.Context, t domain.EntityType, connectionID, naturalKey string) (*domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityKey(t, connectionID, naturalKey)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c, err := cloneEntity(e)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Insert stores a new entity.
func (s *EntityStore) Insert(_ context.Context, entity *domain.CanonicalEntity) error {
	c, err := cloneEntity(*entity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey(entity.Type, entity.ConnectionID, entity.NaturalKey)
	if _, exists := s.entities[key]; exists {
		return domain.ErrAlreadyExists
	}
	s.entities[key] = c
	return nil
}

// CompareAndSwap replaces an entity if checksum and version still match.
func (s *EntityStore) CompareAndSwap(
	_ context.Context,
	entity *domain.CanonicalEntity,
	expectedChecksum string,
	expectedVersion int64,
) error {
	c, err := cloneEntity(*entity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey(entity.Type, entity.ConnectionID, entity.NaturalKey)
	current, ok := s.entities[key]
	if !ok || current.Checksum != expectedChecksum || current.SyncVersion != expectedVersion {
		return domain.ErrWriteConflict
	}
	s.entities[key] = c
	return nil
}

// Touch refreshes SyncedAt if the stored checksum is unchanged.
func (s *EntityStore) Touch(
	_ context.Context,
	t domain.EntityType,
	connectionID, naturalKey, checksum string,
	syncedAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey(t, connectionID, naturalKey)
	current, ok := s.entities[key]
	if !ok || current.Checksum != checksum {
		return domain.ErrWriteConflict
	}
	current.SyncedAt = syncedAt
	s.entities[key] = current
	return nil
}

// Query returns entities in scope ordered by natural key.
func (s *EntityStore) Query(_ context.Context, q domain.EntityQuery) ([]domain.CanonicalEntity, error) {
	if q.OrganizationID == "" {
		return nil, domain.ErrTenantScopeRequired
	}
	s.mu.RLock()
	var matched []domain.CanonicalEntity
	for _, e := range s.entities {
		if e.OrganizationID != q.OrganizationID {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		if q.ConnectionID != "" && e.ConnectionID != q.ConnectionID {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].NaturalKey == matched[j].NaturalKey {
			return matched[i].ConnectionID < matched[j].ConnectionID
		}
		return matched[i].NaturalKey < matched[j].NaturalKey
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []domain.CanonicalEntity{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	result := make([]domain.CanonicalEntity, 0, len(matched))
	for _, e := range matched {
		c, err := cloneEntity(e)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// DeleteStale removes entities of one connection and type last seen before cutoff.
func (s *EntityStore) DeleteStale(_ context.Context, t domain.EntityType, connectionID string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, e := range s.entities {
		if e.Type == t && e.ConnectionID == connectionID && e.SyncedAt.Before(cutoff) {
			delete(s.entities, key)
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of stored entities.
func (s *EntityStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// cloneEntity deep-copies an entity, round-tripping the typed fields.
func cloneEntity(e domain.CanonicalEntity) (domain.CanonicalEntity, error) {
	if e.RawPayload != nil {
		e.RawPayload = append(json.RawMessage(nil), e.RawPayload...)
	}
	if e.Fields != nil {
		data, err := json.Marshal(e.Fields)
		if err != nil {
			return e, err
		}
		fields, err := domain.DecodeFields(e.Fields.EntityType(), data)
		if err != nil {
			return e, err
		}
		e.Fields = fields
	}
	return e, nil
}
