package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

// =============================================================================
// RunLogStore Implementation
// =============================================================================

type runLogStore struct {
	store *Store
}

var _ driven.RunLogStore = (*runLogStore)(nil)

const runColumns = `id, organization_id, connection_id, entity_type, cadence, resumed, full_walk,
	status, started_at, finished_at, pages_processed, entities_upserted, entities_unchanged,
	entities_failed, errors`

// Start records a new run.
func (s *runLogStore) Start(ctx context.Context, run *domain.SyncRun) error {
	errorsJSON, err := marshalErrors(run.Errors)
	if err != nil {
		return err
	}
	res, err := s.store.exec(ctx, `
		INSERT INTO sync_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.OrganizationID, run.ConnectionID, string(run.EntityType), string(run.Cadence),
		boolInt(run.Resumed), boolInt(run.FullWalk), string(run.Status),
		toNanos(run.StartedAt), toNanos(run.FinishedAt), run.PagesProcessed,
		run.EntitiesUpserted, run.EntitiesUnchanged, run.EntitiesFailed, errorsJSON)
	if err != nil {
		return fmt.Errorf("starting run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("starting run: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Finish stores the final counters and status of a run.
func (s *runLogStore) Finish(ctx context.Context, run *domain.SyncRun) error {
	errorsJSON, err := marshalErrors(run.Errors)
	if err != nil {
		return err
	}
	res, err := s.store.exec(ctx, `
		UPDATE sync_runs SET
			status = ?, finished_at = ?, pages_processed = ?, entities_upserted = ?,
			entities_unchanged = ?, entities_failed = ?, errors = ?
		WHERE id = ?
	`, string(run.Status), toNanos(run.FinishedAt), run.PagesProcessed, run.EntitiesUpserted,
		run.EntitiesUnchanged, run.EntitiesFailed, errorsJSON, run.ID)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves a run by ID.
func (s *runLogStore) Get(ctx context.Context, id string) (*domain.SyncRun, error) {
	row := s.store.queryRow(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return run, err
}

// List returns recent runs, most recent first. An empty connectionID lists all.
func (s *runLogStore) List(ctx context.Context, connectionID string, limit int) ([]domain.SyncRun, error) {
	q := `SELECT ` + runColumns + ` FROM sync_runs`
	var args []any
	if connectionID != "" {
		q += ` WHERE connection_id = ?`
		args = append(args, connectionID)
	}
	q += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.store.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.SyncRun //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Prune keeps the most recent keep runs per (connection, entity type).
func (s *runLogStore) Prune(ctx context.Context, keep int) error {
	if keep < 0 {
		return fmt.Errorf("%w: keep must not be negative", domain.ErrInvalidInput)
	}
	_, err := s.store.exec(ctx, `
		DELETE FROM sync_runs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY connection_id, entity_type
					ORDER BY started_at DESC, id DESC
				) AS rn
				FROM sync_runs
			) ranked
			WHERE rn > ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning runs: %w", err)
	}
	return nil
}

func scanRun(row rowScanner) (*domain.SyncRun, error) {
	var run domain.SyncRun
	var entityType, cadence, status, errorsJSON string
	var resumed, fullWalk int
	var started, finished int64

	if err := row.Scan(&run.ID, &run.OrganizationID, &run.ConnectionID, &entityType, &cadence,
		&resumed, &fullWalk, &status, &started, &finished, &run.PagesProcessed,
		&run.EntitiesUpserted, &run.EntitiesUnchanged, &run.EntitiesFailed, &errorsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	if err := json.Unmarshal([]byte(errorsJSON), &run.Errors); err != nil {
		return nil, fmt.Errorf("unmarshalling run errors: %w", err)
	}
	run.EntityType = domain.EntityType(entityType)
	run.Cadence = domain.Cadence(cadence)
	run.Status = domain.RunStatus(status)
	run.Resumed = resumed != 0
	run.FullWalk = fullWalk != 0
	run.StartedAt = fromNanos(started)
	run.FinishedAt = fromNanos(finished)
	return &run, nil
}

func marshalErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	out, err := marshalJSON(errs)
	if err != nil {
		return "", fmt.Errorf("marshalling run errors: %w", err)
	}
	return out, nil
}

// =============================================================================
// EventLedger Implementation
// =============================================================================

type eventLedger struct {
	store *Store
}

var _ driven.EventLedger = (*eventLedger)(nil)

const deliveryColumns = `idempotency_key, event_name, organization_id, connection_id, payload,
	status, attempts, last_error, created_at, updated_at, delivered_at`

// Reserve inserts a delivery unless its key is already recorded.
func (l *eventLedger) Reserve(ctx context.Context, d domain.EventDelivery) (*domain.EventDelivery, bool, error) {
	payloadJSON, err := marshalJSON(d.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("marshalling payload: %w", err)
	}
	res, err := l.store.exec(ctx, `
		INSERT INTO event_ledger (`+deliveryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING
	`, d.Key, d.EventName, d.OrganizationID, d.ConnectionID, payloadJSON, string(d.Status),
		d.Attempts, d.LastError, toNanos(d.CreatedAt), toNanos(d.UpdatedAt), toNanos(d.DeliveredAt))
	if err != nil {
		return nil, false, fmt.Errorf("reserving event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("reserving event: %w", err)
	}

	stored, err := l.Get(ctx, d.Key)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

// Save updates an existing delivery.
func (l *eventLedger) Save(ctx context.Context, d domain.EventDelivery) error {
	payloadJSON, err := marshalJSON(d.Payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}
	res, err := l.store.exec(ctx, `
		UPDATE event_ledger SET
			connection_id = ?, payload = ?, status = ?, attempts = ?, last_error = ?,
			updated_at = ?, delivered_at = ?
		WHERE idempotency_key = ?
	`, d.ConnectionID, payloadJSON, string(d.Status), d.Attempts, d.LastError,
		toNanos(d.UpdatedAt), toNanos(d.DeliveredAt), d.Key)
	if err != nil {
		return fmt.Errorf("saving event delivery: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves a delivery by idempotency key.
func (l *eventLedger) Get(ctx context.Context, key string) (*domain.EventDelivery, error) {
	row := l.store.queryRow(ctx, `SELECT `+deliveryColumns+` FROM event_ledger WHERE idempotency_key = ?`, key)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return d, err
}

// ListByStatus lists deliveries oldest first. An empty organization lists all tenants.
func (l *eventLedger) ListByStatus(
	ctx context.Context,
	organizationID string,
	status domain.DeliveryStatus,
) ([]domain.EventDelivery, error) {
	q := `SELECT ` + deliveryColumns + ` FROM event_ledger WHERE status = ?`
	args := []any{string(status)}
	if organizationID != "" {
		q += ` AND organization_id = ?`
		args = append(args, organizationID)
	}
	q += ` ORDER BY created_at, idempotency_key`

	rows, err := l.store.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying event ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.EventDelivery //nolint:prealloc // size unknown from query
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event ledger: %w", err)
	}
	return out, nil
}

func scanDelivery(row rowScanner) (*domain.EventDelivery, error) {
	var d domain.EventDelivery
	var payloadJSON, status string
	var created, updated, delivered int64

	if err := row.Scan(&d.Key, &d.EventName, &d.OrganizationID, &d.ConnectionID, &payloadJSON,
		&status, &d.Attempts, &d.LastError, &created, &updated, &delivered); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning event delivery: %w", err)
	}

	if payloadJSON != "" && payloadJSON != jsonNull {
		if err := json.Unmarshal([]byte(payloadJSON), &d.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling payload: %w", err)
		}
	}
	d.Status = domain.DeliveryStatus(status)
	d.CreatedAt = fromNanos(created)
	d.UpdatedAt = fromNanos(updated)
	d.DeliveredAt = fromNanos(delivered)
	return &d, nil
}

// jsonNull is the JSON representation of null.
const jsonNull = "null"
