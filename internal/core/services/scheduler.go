package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
	"github.com/custodia-labs/fleetsync/internal/logger"
	"github.com/custodia-labs/fleetsync/internal/metrics"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// dispatchOrder is the order cadences are considered for one entity type.
// Only the first due cadence is dispatched per tick, since all three share a lock.
var dispatchOrder = []domain.Cadence{domain.CadenceFull, domain.CadencePeriodic, domain.CadenceIncremental}

// SchedulerOptions configures background work besides syncing.
type SchedulerOptions struct {
	Config domain.SchedulerConfig

	// Retention runs every RetentionInterval when both are set.
	Retention         driving.RetentionService
	RetentionInterval time.Duration

	// Bridge dead letters are redriven every RedriveInterval when both are set.
	Bridge          driving.EventBridge
	RedriveInterval time.Duration
}

// Scheduler decides which (connection, entity type, cadence) is due and
// hands it to a bounded worker pool.
// It is a pure core service with no external control API.
type Scheduler struct {
	opts        SchedulerOptions
	connections driven.ConnectionStore
	states      driven.SyncStateStore
	factory     driven.ConnectorFactory
	syncOrch    driving.SyncOrchestrator
	now         func() time.Time

	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	wg          sync.WaitGroup
	inflight    map[string]bool
	lastAttempt map[string]time.Time

	lastRetention time.Time
	lastRedrive   time.Time
	retentionBusy bool
	redriveBusy   bool
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	opts SchedulerOptions,
	connections driven.ConnectionStore,
	states driven.SyncStateStore,
	factory driven.ConnectorFactory,
	syncOrch driving.SyncOrchestrator,
) *Scheduler {
	if opts.Config.TickInterval <= 0 {
		opts.Config.TickInterval = domain.DefaultSchedulerConfig().TickInterval
	}
	if opts.Config.MaxConcurrency <= 0 {
		opts.Config.MaxConcurrency = domain.DefaultSchedulerConfig().MaxConcurrency
	}
	return &Scheduler{
		opts:        opts,
		connections: connections,
		states:      states,
		factory:     factory,
		syncOrch:    syncOrch,
		now:         time.Now,
		inflight:    make(map[string]bool),
		lastAttempt: make(map[string]time.Time),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled, then waits for in-flight runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	// Housekeeping waits one full interval after startup.
	s.lastRetention = s.now()
	s.lastRedrive = s.now()
	s.mu.Unlock()
	defer close(s.doneCh)

	pool := newWorkerPool(ctx, s.opts.Config.MaxConcurrency, 0, s.execute)
	defer pool.Drain()

	logger.Info("scheduler started",
		zap.Duration("tick", s.opts.Config.TickInterval),
		zap.Int("max_concurrency", s.opts.Config.MaxConcurrency),
	)
	err := s.run(ctx, pool)
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return err
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	// Wait for running tasks to complete
	<-done
	logger.Info("scheduler stopped")
	return nil
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context, pool *workerPool[domain.SyncTask]) error {
	// Check for due tasks immediately on startup
	s.tick(ctx, pool)

	ticker := time.NewTicker(s.opts.Config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.tick(ctx, pool)
		}
	}
}

// tick dispatches every due task and starts due housekeeping.
func (s *Scheduler) tick(ctx context.Context, pool *workerPool[domain.SyncTask]) {
	tasks, err := s.DueTasks(ctx)
	if err != nil {
		logger.Error("scheduler: failed to compute due tasks", zap.Error(err))
	} else {
		for _, task := range tasks {
			s.dispatch(pool, task)
		}
	}
	s.maybeRunRetention(ctx)
	s.maybeRedrive(ctx)
}

// DueTasks returns at most one due task per (connection, entity type),
// skipping pairs that already have a run in flight.
func (s *Scheduler) DueTasks(ctx context.Context) ([]domain.SyncTask, error) {
	conns, err := s.connections.List(ctx, domain.ConnectionFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	now := s.now()
	var due []domain.SyncTask
	for i := range conns {
		conn := &conns[i]
		if conn.CheckSyncable() != nil {
			continue
		}

		states, err := s.states.List(ctx, conn.ID)
		if err != nil {
			logger.Warn("scheduler: failed to list sync states",
				zap.String("connection_id", conn.ID), zap.Error(err))
			continue
		}
		byType := make(map[domain.EntityType]domain.SyncState, len(states))
		for _, st := range states {
			byType[st.EntityType] = st
		}

		for _, t := range s.entityTypes(conn) {
			state := byType[t]
			for _, cadence := range dispatchOrder {
				task := domain.SyncTask{
					OrganizationID: conn.OrganizationID,
					ConnectionID:   conn.ID,
					EntityType:     t,
					Cadence:        cadence,
				}
				if !domain.IsDue(now, conn.SyncConfig.Interval(cadence), state.LastSuccess(cadence), s.attemptedAt(task)) {
					continue
				}
				if s.isInflight(task.Key()) {
					metrics.SchedulerSkips.WithLabelValues("in_flight").Inc()
				} else {
					due = append(due, task)
				}
				break
			}
		}
	}
	return due, nil
}

// entityTypes returns the types a connection syncs: the provider's types
// narrowed by the connection's configuration.
func (s *Scheduler) entityTypes(conn *domain.Connection) []domain.EntityType {
	offered := domain.AllEntityTypes()
	if s.factory != nil {
		desc, err := s.factory.Describe(conn.ProviderType)
		if err != nil {
			logger.Warn("scheduler: unknown provider",
				zap.String("connection_id", conn.ID),
				zap.String("provider", conn.ProviderType),
			)
			return nil
		}
		offered = desc.EntityTypes
	}

	types := make([]domain.EntityType, 0, len(offered))
	for _, t := range offered {
		if conn.WantsEntityType(t) {
			types = append(types, t)
		}
	}
	return types
}

// dispatch hands a task to the pool. A saturated pool skips the task
// until the next tick.
func (s *Scheduler) dispatch(pool *workerPool[domain.SyncTask], task domain.SyncTask) {
	s.mu.Lock()
	if s.inflight[task.Key()] {
		s.mu.Unlock()
		metrics.SchedulerSkips.WithLabelValues("in_flight").Inc()
		return
	}
	s.inflight[task.Key()] = true
	s.mu.Unlock()

	if !pool.Submit(task) {
		s.mu.Lock()
		delete(s.inflight, task.Key())
		s.mu.Unlock()
		metrics.SchedulerSkips.WithLabelValues("pool_full").Inc()
		logger.Debug("scheduler: pool saturated, deferring task", zap.Stringer("task", task))
		return
	}

	s.mu.Lock()
	s.lastAttempt[task.String()] = s.now()
	s.mu.Unlock()
}

// execute runs one task on a pool worker.
func (s *Scheduler) execute(ctx context.Context, task domain.SyncTask) {
	defer func() {
		s.mu.Lock()
		delete(s.inflight, task.Key())
		s.mu.Unlock()
	}()

	_, err := s.syncOrch.Run(ctx, domain.RunRequest{
		ConnectionID: task.ConnectionID,
		EntityType:   task.EntityType,
		Cadence:      task.Cadence,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSyncInProgress):
		metrics.SchedulerSkips.WithLabelValues("in_flight").Inc()
	case errors.Is(err, domain.ErrUnsupportedType):
		logger.Debug("scheduler: entity type not offered by provider", zap.Stringer("task", task))
	default:
		logger.Warn("scheduler: sync failed", zap.Stringer("task", task), zap.Error(err))
	}
}

func (s *Scheduler) isInflight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[key]
}

func (s *Scheduler) attemptedAt(task domain.SyncTask) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAttempt[task.String()]
}

// maybeRunRetention starts a cleanup when the retention interval elapsed.
func (s *Scheduler) maybeRunRetention(ctx context.Context) {
	if s.opts.Retention == nil || s.opts.RetentionInterval <= 0 {
		return
	}
	now := s.now()
	s.mu.Lock()
	if s.retentionBusy || !domain.IsDue(now, s.opts.RetentionInterval, s.lastRetention, time.Time{}) {
		s.mu.Unlock()
		return
	}
	s.retentionBusy = true
	s.lastRetention = now
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.retentionBusy = false
			s.mu.Unlock()
		}()
		report, err := s.opts.Retention.Cleanup(ctx)
		if err != nil {
			logger.Error("scheduler: retention failed", zap.Error(err))
			return
		}
		logger.Info("scheduler: retention complete",
			zap.Int("deleted", report.EntitiesDeleted),
			zap.Int("skipped", report.Skipped),
		)
	}()
}

// maybeRedrive retries dead-lettered events when the redrive interval elapsed.
func (s *Scheduler) maybeRedrive(ctx context.Context) {
	if s.opts.Bridge == nil || s.opts.RedriveInterval <= 0 {
		return
	}
	now := s.now()
	s.mu.Lock()
	if s.redriveBusy || !domain.IsDue(now, s.opts.RedriveInterval, s.lastRedrive, time.Time{}) {
		s.mu.Unlock()
		return
	}
	s.redriveBusy = true
	s.lastRedrive = now
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.redriveBusy = false
			s.mu.Unlock()
		}()
		n, err := s.opts.Bridge.RedriveAll(ctx)
		if err != nil {
			logger.Error("scheduler: redrive failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("scheduler: redrove dead letters", zap.Int("delivered", n))
		}
	}()
}
