package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
	"github.com/custodia-labs/fleetsync/internal/logger"
	"github.com/custodia-labs/fleetsync/internal/metrics"
)

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// maxRunErrors caps the per-entity messages kept on a run log entry.
const maxRunErrors = 100

// SyncOptions tunes the orchestrator.
type SyncOptions struct {
	// PageSize is requested from providers unless the connection overrides it.
	PageSize int

	// MaxParallel bounds entity types synced at once by RunConnection.
	MaxParallel int

	// MaxConcurrent bounds runs in flight across all connections, whether
	// scheduled or on demand.
	MaxConcurrent int
}

// SyncOrchestrator runs the per-(connection, entity type) sync state machine:
// Idle -> Running -> {Success, Failed}.
type SyncOrchestrator struct {
	connections driven.ConnectionStore
	states      driven.SyncStateStore
	runs        driven.RunLogStore
	factory     driven.ConnectorFactory
	writer      *Writer
	retry       *RetryPolicy
	opts        SyncOptions

	now   func() time.Time
	newID func() string

	// slots is the global run semaphore.
	slots chan struct{}

	// Status tracking
	mu          sync.Mutex
	activeSyncs map[string]*driving.SyncStatus
}

// NewSyncOrchestrator creates a new sync orchestrator.
func NewSyncOrchestrator(
	connections driven.ConnectionStore,
	states driven.SyncStateStore,
	runs driven.RunLogStore,
	factory driven.ConnectorFactory,
	writer *Writer,
	retry *RetryPolicy,
	opts SyncOptions,
) *SyncOrchestrator {
	if opts.PageSize <= 0 {
		opts.PageSize = domain.DefaultAppSettings().Sync.PageSize
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 2
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = domain.DefaultSchedulerConfig().MaxConcurrency
	}
	return &SyncOrchestrator{
		connections: connections,
		states:      states,
		runs:        runs,
		factory:     factory,
		writer:      writer,
		retry:       retry,
		opts:        opts,
		now:         time.Now,
		newID:       uuid.NewString,
		slots:       make(chan struct{}, opts.MaxConcurrent),
		activeSyncs: make(map[string]*driving.SyncStatus),
	}
}

// walkPlan is the walk a run performs.
type walkPlan struct {
	cadence   domain.Cadence
	since     time.Time
	cursor    string
	startedAt time.Time
	resumed   bool
}

// planWalk decides where a run starts. A pending cursor always wins so an
// interrupted walk finishes before a new one begins.
func planWalk(state *domain.SyncState, requested domain.Cadence, now time.Time) walkPlan {
	if state.HasPendingWalk() {
		cadence := state.CursorCadence
		if !cadence.IsValid() {
			cadence = requested
		}
		startedAt := state.WalkStartedAt
		if startedAt.IsZero() {
			startedAt = now
		}
		return walkPlan{
			cadence:   cadence,
			since:     state.CursorSince,
			cursor:    state.LastCursor,
			startedAt: startedAt,
			resumed:   true,
		}
	}

	plan := walkPlan{cadence: requested, startedAt: now}
	switch requested {
	case domain.CadenceIncremental:
		plan.since = state.LastIncrementalAt
	case domain.CadencePeriodic:
		plan.since = state.LastFullSyncStartedAt
	case domain.CadenceFull:
		plan.since = time.Time{}
	}
	return plan
}

// Run syncs one (connection, entity type).
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (o *SyncOrchestrator) Run(ctx context.Context, req domain.RunRequest) (*domain.SyncRun, error) {
	if !req.EntityType.IsValid() {
		return nil, fmt.Errorf("%w: entity type %q", domain.ErrInvalidInput, req.EntityType)
	}
	if !req.Cadence.IsValid() {
		return nil, fmt.Errorf("%w: cadence %q", domain.ErrInvalidInput, req.Cadence)
	}

	// 1. Exclusive per (connection, entity type)
	key := domain.LockKey(req.ConnectionID, req.EntityType)
	status := &driving.SyncStatus{
		ConnectionID: req.ConnectionID,
		EntityType:   req.EntityType,
		Running:      true,
		StartedAt:    o.now(),
	}
	if !o.tryAcquire(key, status) {
		return nil, domain.ErrSyncInProgress
	}
	defer o.release(key)

	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.slots }()

	// 2. Get connection
	conn, err := o.connections.Get(ctx, req.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	if err := conn.CheckSyncable(); err != nil {
		return nil, err
	}

	// 3. Create connector
	if o.factory == nil {
		return nil, fmt.Errorf("create connector: connector factory not configured")
	}
	connector, err := o.factory.Create(ctx, *conn)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	defer connector.Close()

	caps := connector.Capabilities()
	if !caps.Supports(req.EntityType) {
		return nil, fmt.Errorf("%w: %s does not expose %s", domain.ErrUnsupportedType, conn.ProviderType, req.EntityType)
	}

	// 4. Load sync state and choose the walk
	state, err := o.states.Get(ctx, conn.ID, req.EntityType)
	if errors.Is(err, domain.ErrNotFound) {
		state = &domain.SyncState{
			OrganizationID: conn.OrganizationID,
			ConnectionID:   conn.ID,
			EntityType:     req.EntityType,
		}
	} else if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}

	plan := planWalk(state, req.Cadence, o.now())
	run := &domain.SyncRun{
		ID:             o.newID(),
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		EntityType:     req.EntityType,
		Cadence:        plan.cadence,
		Resumed:        plan.resumed,
		FullWalk:       plan.since.IsZero(),
		Status:         domain.RunRunning,
		StartedAt:      o.now(),
	}
	if err := o.runs.Start(ctx, run); err != nil {
		return nil, fmt.Errorf("start run log: %w", err)
	}
	o.updateStatus(key, func(s *driving.SyncStatus) { s.Cadence = plan.cadence })

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	log := logger.With(
		zap.String("run_id", run.ID),
		zap.String("connection_id", conn.ID),
		zap.String("provider", conn.ProviderType),
		zap.String("entity_type", string(req.EntityType)),
		zap.String("cadence", string(plan.cadence)),
	)
	log.Info("starting sync",
		zap.Bool("resumed", plan.resumed),
		zap.Bool("full_walk", run.FullWalk),
		zap.Time("since", plan.since),
	)

	// 5. Authenticate
	session, err := o.authenticate(ctx, connector, conn)
	if err != nil {
		return o.fail(ctx, conn, state, run, fmt.Errorf("authenticate: %w", err))
	}

	// 6. Walk pages strictly in order
	pageSize := o.opts.PageSize
	if conn.SyncConfig.PageSize > 0 {
		pageSize = conn.SyncConfig.PageSize
	}
	if caps.MaxPageSize > 0 && pageSize > caps.MaxPageSize {
		pageSize = caps.MaxPageSize
	}

	reauth := func(ctx context.Context) error {
		s, err := connector.Authenticate(ctx, conn.Credentials)
		if err != nil {
			return err
		}
		session = s
		return nil
	}

	cursor := plan.cursor
	for {
		if run.PagesProcessed > 0 {
			if err := o.checkStillSyncable(ctx, conn.ID); err != nil {
				return o.fail(ctx, conn, state, run, err)
			}
		}
		if session.Expired(o.now()) {
			if err := reauth(ctx); err != nil {
				return o.fail(ctx, conn, state, run, fmt.Errorf("refresh session: %w", err))
			}
		}

		fetchReq := driven.FetchRequest{
			EntityType: req.EntityType,
			Cursor:     cursor,
			PageSize:   pageSize,
		}
		if caps.SupportsDeltaFilter {
			fetchReq.UpdatedSince = plan.since
		}

		var page *driven.Page
		err := o.retry.Do(ctx, func(ctx context.Context) error {
			p, err := connector.FetchPage(ctx, session, fetchReq)
			page = p
			return err
		}, reauth)
		if err != nil {
			return o.fail(ctx, conn, state, run, fmt.Errorf("fetch page %q: %w", cursor, err))
		}

		if err := o.processPage(ctx, connector, conn, run, key, page, plan, caps); err != nil {
			return o.fail(ctx, conn, state, run, err)
		}
		run.PagesProcessed++
		o.updateStatus(key, func(s *driving.SyncStatus) { s.PagesProcessed = run.PagesProcessed })
		metrics.PagesFetched.WithLabelValues(conn.ProviderType, string(req.EntityType)).Inc()

		log.Debug("page committed",
			zap.String("cursor", cursor),
			zap.String("next_cursor", page.NextCursor),
			zap.Int("items", len(page.Items)),
		)

		if page.NextCursor == "" {
			break
		}
		if page.NextCursor == cursor {
			return o.fail(ctx, conn, state, run, fmt.Errorf("%w: cursor %q did not advance", domain.ErrFatal, cursor))
		}

		// 7. Persist the resume point as soon as the page commits
		cursor = page.NextCursor
		state.LastCursor = cursor
		state.CursorCadence = plan.cadence
		state.CursorSince = plan.since
		state.WalkStartedAt = plan.startedAt
		state.UpdatedAt = o.now()
		if err := o.states.Save(ctx, *state); err != nil {
			return o.fail(ctx, conn, state, run, fmt.Errorf("save sync state: %w", err))
		}
	}

	// 8. Completion
	finished := o.now()
	state.CompleteWalk(plan.cadence, plan.since, plan.startedAt, finished)
	state.UpdatedAt = finished
	if err := o.states.Save(ctx, *state); err != nil {
		return o.fail(ctx, conn, state, run, fmt.Errorf("save sync state: %w", err))
	}

	o.updateConnection(ctx, conn.ID, domain.ConnectionSyncUpdate{
		LastSyncAt:   finished,
		Status:       domain.ConnectionConnected,
		FromStatuses: []domain.ConnectionStatus{domain.ConnectionConnecting, domain.ConnectionConnected},
		LastError:    ptr(""),
	})

	run.Status = domain.RunSucceeded
	run.FinishedAt = finished
	if err := o.runs.Finish(ctx, run); err != nil {
		log.Warn("failed to finish run log", zap.Error(err))
	}
	o.recordRunMetrics(conn, run)

	log.Info("sync complete",
		zap.Int("pages", run.PagesProcessed),
		zap.Int("upserted", run.EntitiesUpserted),
		zap.Int("unchanged", run.EntitiesUnchanged),
		zap.Int("failed", run.EntitiesFailed),
	)
	return run, nil
}

// processPage maps and writes every item of a page. Mapping and validation
// failures skip the entity. Any other write failure aborts the page so the
// cursor is not advanced past unwritten items.
func (o *SyncOrchestrator) processPage(
	ctx context.Context,
	connector driven.Connector,
	conn *domain.Connection,
	run *domain.SyncRun,
	key string,
	page *driven.Page,
	plan walkPlan,
	caps driven.ConnectorCapabilities,
) error {
	for _, item := range page.Items {
		entity, err := connector.MapToCanonical(run.EntityType, item)
		if err != nil {
			o.recordEntityError(run, key, domain.KindMapping, err)
			continue
		}
		entity.Type = run.EntityType
		entity.OrganizationID = conn.OrganizationID
		entity.ConnectionID = conn.ID
		if entity.RawPayload == nil {
			entity.RawPayload = append([]byte(nil), item...)
		}

		// Providers without a delta filter return everything; items older
		// than the walk's since filter cannot have changed.
		if !caps.SupportsDeltaFilter && !plan.since.IsZero() &&
			!entity.SourceUpdatedAt.IsZero() && entity.SourceUpdatedAt.Before(plan.since) {
			run.EntitiesUnchanged++
			continue
		}

		result, err := o.writer.Upsert(ctx, entity)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrWriteConflict) {
				o.recordEntityError(run, key, domain.Classify(err), err)
				continue
			}
			return fmt.Errorf("write %s: %w", entity.NaturalKey, err)
		}

		switch result {
		case domain.UpsertInserted, domain.UpsertUpdated:
			run.EntitiesUpserted++
		case domain.UpsertUnchanged:
			run.EntitiesUnchanged++
		}
		o.updateStatus(key, func(s *driving.SyncStatus) {
			s.EntitiesUpserted = run.EntitiesUpserted
			s.EntitiesUnchanged = run.EntitiesUnchanged
		})
	}
	return nil
}

func (o *SyncOrchestrator) recordEntityError(run *domain.SyncRun, key string, kind domain.ErrorKind, err error) {
	run.EntitiesFailed++
	if len(run.Errors) < maxRunErrors {
		run.Errors = append(run.Errors, err.Error())
	}
	metrics.EntityErrors.WithLabelValues(string(run.EntityType), kind.String()).Inc()
	logger.Warn("skipping entity",
		zap.String("run_id", run.ID),
		zap.String("entity_type", string(run.EntityType)),
		zap.String("kind", kind.String()),
		zap.Error(err),
	)
	o.updateStatus(key, func(s *driving.SyncStatus) { s.ErrorCount = run.EntitiesFailed })
}

// authenticate opens a provider session and reflects progress on the connection status.
func (o *SyncOrchestrator) authenticate(ctx context.Context, connector driven.Connector, conn *domain.Connection) (*driven.Session, error) {
	o.updateConnection(ctx, conn.ID, domain.ConnectionSyncUpdate{
		Status:       domain.ConnectionConnecting,
		FromStatuses: []domain.ConnectionStatus{domain.ConnectionDisconnected},
	})

	var session *driven.Session
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		s, err := connector.Authenticate(ctx, conn.Credentials)
		session = s
		return err
	}, nil)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = &driven.Session{}
	}

	o.updateConnection(ctx, conn.ID, domain.ConnectionSyncUpdate{
		Status:       domain.ConnectionConnected,
		FromStatuses: []domain.ConnectionStatus{domain.ConnectionConnecting},
	})
	return session, nil
}

// checkStillSyncable re-reads the connection between pages so deactivation
// stops a run after the page in flight.
func (o *SyncOrchestrator) checkStillSyncable(ctx context.Context, connectionID string) error {
	conn, err := o.connections.Get(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	return conn.CheckSyncable()
}

// fail records a failed run. The cursor keeps pointing at the last committed
// page, so the next run resumes there.
func (o *SyncOrchestrator) fail(
	ctx context.Context,
	conn *domain.Connection,
	state *domain.SyncState,
	run *domain.SyncRun,
	runErr error,
) (*domain.SyncRun, error) {
	kind := domain.Classify(runErr)
	now := o.now()

	// Persist with a fresh context so cancellation still leaves a record.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	state.LastError = runErr.Error()
	state.UpdatedAt = now
	if err := o.states.Save(saveCtx, *state); err != nil {
		logger.Error("failed to save sync state", zap.String("connection_id", conn.ID), zap.Error(err))
	}

	update := domain.ConnectionSyncUpdate{LastError: ptr(runErr.Error())}
	if kind == domain.KindFatal {
		update.Status = domain.ConnectionError
	}
	o.updateConnection(saveCtx, conn.ID, update)

	run.Status = domain.RunFailed
	run.FinishedAt = now
	run.Errors = append(run.Errors, runErr.Error())
	if err := o.runs.Finish(saveCtx, run); err != nil {
		logger.Error("failed to finish run log", zap.String("run_id", run.ID), zap.Error(err))
	}
	o.recordRunMetrics(conn, run)

	logger.Error("sync failed",
		zap.String("run_id", run.ID),
		zap.String("connection_id", conn.ID),
		zap.String("entity_type", string(run.EntityType)),
		zap.String("kind", kind.String()),
		zap.Int("pages", run.PagesProcessed),
		zap.Error(runErr),
	)
	return run, runErr
}

func (o *SyncOrchestrator) recordRunMetrics(conn *domain.Connection, run *domain.SyncRun) {
	metrics.SyncRuns.WithLabelValues(conn.ProviderType, string(run.EntityType), string(run.Cadence), string(run.Status)).Inc()
	metrics.SyncRunDuration.WithLabelValues(conn.ProviderType, string(run.EntityType), string(run.Cadence)).
		Observe(run.Duration().Seconds())
}

// updateConnection writes sync bookkeeping onto the connection.
// Failures are logged; connection bookkeeping never fails a run.
func (o *SyncOrchestrator) updateConnection(ctx context.Context, id string, update domain.ConnectionSyncUpdate) {
	update.UpdatedAt = o.now()
	if err := o.connections.UpdateSyncStatus(ctx, id, update); err != nil {
		logger.Warn("failed to update connection", zap.String("connection_id", id), zap.Error(err))
	}
}

func ptr[T any](v T) *T { return &v }

// RunConnection syncs every entity type of a connection at one cadence.
// Types already running are skipped. Errors are joined.
func (o *SyncOrchestrator) RunConnection(ctx context.Context, connectionID string, cadence domain.Cadence) ([]domain.SyncRun, error) {
	conn, err := o.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	if err := conn.CheckSyncable(); err != nil {
		return nil, err
	}
	desc, err := o.factory.Describe(conn.ProviderType)
	if err != nil {
		return nil, err
	}

	var types []domain.EntityType
	for _, t := range desc.EntityTypes {
		if conn.WantsEntityType(t) {
			types = append(types, t)
		}
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		runs []domain.SyncRun
		errs []error
		sem  = make(chan struct{}, o.opts.MaxParallel)
	)
	for _, t := range types {
		wg.Add(1)
		go func(t domain.EntityType) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			run, err := o.Run(ctx, domain.RunRequest{ConnectionID: connectionID, EntityType: t, Cadence: cadence})
			mu.Lock()
			defer mu.Unlock()
			if run != nil {
				runs = append(runs, *run)
			}
			if err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
				errs = append(errs, fmt.Errorf("sync %s: %w", t, err))
			}
		}(t)
	}
	wg.Wait()

	sort.Slice(runs, func(i, j int) bool { return runs[i].EntityType < runs[j].EntityType })
	if len(errs) > 0 {
		return runs, errors.Join(errs...)
	}
	return runs, ctx.Err()
}

// Status returns live progress for a connection's active runs.
func (o *SyncOrchestrator) Status(_ context.Context, connectionID string) ([]driving.SyncStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prefix := connectionID + "/"
	var out []driving.SyncStatus
	for key, status := range o.activeSyncs {
		if strings.HasPrefix(key, prefix) {
			// Return a copy to avoid race conditions
			out = append(out, *status)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityType < out[j].EntityType })
	return out, nil
}

// History returns recent runs for a connection.
func (o *SyncOrchestrator) History(ctx context.Context, connectionID string, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return o.runs.List(ctx, connectionID, limit)
}

// tryAcquire claims the (connection, entity type) key. It never waits.
func (o *SyncOrchestrator) tryAcquire(key string, status *driving.SyncStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.activeSyncs[key]; busy {
		return false
	}
	o.activeSyncs[key] = status
	return true
}

func (o *SyncOrchestrator) release(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeSyncs, key)
}

func (o *SyncOrchestrator) updateStatus(key string, fn func(s *driving.SyncStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.activeSyncs[key]; ok {
		fn(s)
	}
}
