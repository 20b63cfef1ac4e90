package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
	"github.com/custodia-labs/fleetsync/internal/logger"
	"github.com/custodia-labs/fleetsync/internal/metrics"
)

// Ensure RetentionService implements the interface.
var _ driving.RetentionService = (*RetentionService)(nil)

// RetentionService deletes entities a provider no longer returns.
//
// An entity is stale when it was not seen by the last completed full walk
// and has not been seen for StaleAfter. Pairs without a completed full walk
// are never cleaned, so a partial walk cannot delete live records.
type RetentionService struct {
	connections driven.ConnectionStore
	states      driven.SyncStateStore
	entities    driven.EntityStore
	runs        driven.RunLogStore
	cfg         domain.RetentionSettings
	now         func() time.Time
}

// NewRetentionService creates a retention service.
func NewRetentionService(
	connections driven.ConnectionStore,
	states driven.SyncStateStore,
	entities driven.EntityStore,
	runs driven.RunLogStore,
	cfg domain.RetentionSettings,
) *RetentionService {
	return &RetentionService{
		connections: connections,
		states:      states,
		entities:    entities,
		runs:        runs,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Cleanup deletes stale entities and prunes the run log.
func (s *RetentionService) Cleanup(ctx context.Context) (*driving.CleanupReport, error) {
	report := &driving.CleanupReport{ByType: make(map[string]int)}

	conns, err := s.connections.List(ctx, domain.ConnectionFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	horizon := s.now().Add(-s.cfg.StaleAfter)
	var errs []error
	for i := range conns {
		states, err := s.states.List(ctx, conns[i].ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("list sync states %s: %w", conns[i].ID, err))
			continue
		}
		for _, st := range states {
			if st.LastFullSyncStartedAt.IsZero() {
				report.Skipped++
				continue
			}
			cutoff := st.LastFullSyncStartedAt
			if horizon.Before(cutoff) {
				cutoff = horizon
			}
			n, err := s.entities.DeleteStale(ctx, st.EntityType, st.ConnectionID, cutoff)
			if err != nil {
				errs = append(errs, fmt.Errorf("delete stale %s/%s: %w", st.ConnectionID, st.EntityType, err))
				continue
			}
			if n > 0 {
				report.EntitiesDeleted += n
				report.ByType[string(st.EntityType)] += n
				metrics.EntitiesDeleted.WithLabelValues(string(st.EntityType)).Add(float64(n))
				logger.Info("deleted stale entities",
					zap.String("connection_id", st.ConnectionID),
					zap.String("entity_type", string(st.EntityType)),
					zap.Int("count", n),
					zap.Time("cutoff", cutoff),
				)
			}
		}
	}

	if s.cfg.KeepRuns > 0 {
		if err := s.runs.Prune(ctx, s.cfg.KeepRuns); err != nil {
			errs = append(errs, fmt.Errorf("prune run log: %w", err))
		}
	}

	return report, errors.Join(errs...)
}
