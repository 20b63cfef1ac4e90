package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

// Ensure RunLogStore implements the interface.
var _ driven.RunLogStore = (*RunLogStore)(nil)

// RunLogStore is an in-memory implementation of driven.RunLogStore.
type RunLogStore struct {
	mu   sync.RWMutex
	runs map[string]domain.SyncRun
}

// NewRunLogStore creates a new in-memory run log.
func NewRunLogStore() *RunLogStore {
	return &RunLogStore{runs: make(map[string]domain.SyncRun)}
}

// Start records a run in the running state.
func (s *RunLogStore) Start(_ context.Context, run *domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.runs[run.ID] = cloneRun(*run)
	return nil
}

// Finish records the final state of a run.
func (s *RunLogStore) Finish(_ context.Context, run *domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		return domain.ErrNotFound
	}
	s.runs[run.ID] = cloneRun(*run)
	return nil
}

// Get retrieves a run by ID.
func (s *RunLogStore) Get(_ context.Context, id string) (*domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	r := cloneRun(run)
	return &r, nil
}

// List returns recent runs for a connection, most recent first.
func (s *RunLogStore) List(_ context.Context, connectionID string, limit int) ([]domain.SyncRun, error) {
	s.mu.RLock()
	var result []domain.SyncRun
	for _, run := range s.runs {
		if connectionID == "" || run.ConnectionID == connectionID {
			result = append(result, cloneRun(run))
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Prune keeps the most recent keep runs per (connection, entity type).
func (s *RunLogStore) Prune(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make(map[string][]domain.SyncRun)
	for _, run := range s.runs {
		key := domain.LockKey(run.ConnectionID, run.EntityType)
		groups[key] = append(groups[key], run)
	}
	for _, runs := range groups {
		if len(runs) <= keep {
			continue
		}
		sortNewestFirst(runs)
		for _, old := range runs[keep:] {
			delete(s.runs, old.ID)
		}
	}
	return nil
}

func sortNewestFirst(runs []domain.SyncRun) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}

func cloneRun(r domain.SyncRun) domain.SyncRun {
	if r.Errors != nil {
		r.Errors = append([]string(nil), r.Errors...)
	}
	return r
}
