package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

// ==================== Connection Store ====================

// connectionStore implements driven.ConnectionStore.
type connectionStore struct {
	store *Store
}

var _ driven.ConnectionStore = (*connectionStore)(nil)

const connectionColumns = `id, organization_id, provider_type, name, credentials,
	incremental_interval, periodic_interval, full_sync_interval, entity_types, page_size,
	multi_homed, is_active, status, last_sync_at, last_error, created_at, updated_at`

// Save stores or updates a connection.
func (s *connectionStore) Save(ctx context.Context, conn domain.Connection) error {
	credsJSON, err := marshalJSON(conn.Credentials)
	if err != nil {
		return fmt.Errorf("marshalling credentials: %w", err)
	}
	typesJSON, err := marshalJSON(conn.SyncConfig.EntityTypes)
	if err != nil {
		return fmt.Errorf("marshalling entity types: %w", err)
	}

	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	if conn.UpdatedAt.IsZero() {
		conn.UpdatedAt = now
	}

	_, err = s.store.exec(ctx, `
		INSERT INTO connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			organization_id = excluded.organization_id,
			provider_type = excluded.provider_type,
			name = excluded.name,
			credentials = excluded.credentials,
			incremental_interval = excluded.incremental_interval,
			periodic_interval = excluded.periodic_interval,
			full_sync_interval = excluded.full_sync_interval,
			entity_types = excluded.entity_types,
			page_size = excluded.page_size,
			multi_homed = excluded.multi_homed,
			is_active = excluded.is_active,
			status = excluded.status,
			last_sync_at = excluded.last_sync_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, conn.ID, conn.OrganizationID, conn.ProviderType, conn.Name, credsJSON,
		int64(conn.SyncConfig.IncrementalInterval), int64(conn.SyncConfig.PeriodicInterval),
		int64(conn.SyncConfig.FullSyncInterval), typesJSON, conn.SyncConfig.PageSize,
		boolInt(conn.MultiHomed), boolInt(conn.IsActive), string(conn.Status),
		toNanos(conn.LastSyncAt), conn.LastError, toNanos(conn.CreatedAt), toNanos(conn.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving connection: %w", err)
	}
	return nil
}

// Get retrieves a connection by ID.
func (s *connectionStore) Get(ctx context.Context, id string) (*domain.Connection, error) {
	row := s.store.queryRow(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// List returns connections matching the filter, oldest first.
func (s *connectionStore) List(ctx context.Context, filter domain.ConnectionFilter) ([]domain.Connection, error) {
	var where []string
	var args []any
	if filter.OrganizationID != "" {
		where = append(where, "organization_id = ?")
		args = append(args, filter.OrganizationID)
	}
	if filter.ProviderType != "" {
		where = append(where, "provider_type = ?")
		args = append(args, filter.ProviderType)
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	q := `SELECT ` + connectionColumns + ` FROM connections`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, id"

	rows, err := s.store.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var conns []domain.Connection //nolint:prealloc // size unknown from query
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connections: %w", err)
	}
	return conns, nil
}

// UpdateSyncStatus writes the sync bookkeeping columns. The status change is
// a conditional UPDATE so it only lands on the expected prior statuses.
func (s *connectionStore) UpdateSyncStatus(ctx context.Context, id string, update domain.ConnectionSyncUpdate) error {
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	set := []string{"updated_at = ?"}
	args := []any{toNanos(updatedAt)}
	if !update.LastSyncAt.IsZero() {
		set = append(set, "last_sync_at = ?")
		args = append(args, toNanos(update.LastSyncAt))
	}
	if update.Status == "" && update.LastError != nil {
		set = append(set, "last_error = ?")
		args = append(args, *update.LastError)
	}
	args = append(args, id)

	res, err := s.store.exec(ctx, `UPDATE connections SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating connection sync status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating connection sync status: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}

	if update.Status == "" {
		return nil
	}
	set = []string{"status = ?"}
	args = []any{string(update.Status)}
	if update.LastError != nil {
		set = append(set, "last_error = ?")
		args = append(args, *update.LastError)
	}
	q := `UPDATE connections SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	args = append(args, id)
	if len(update.FromStatuses) > 0 {
		marks := make([]string, len(update.FromStatuses))
		for i, st := range update.FromStatuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		q += ` AND status IN (` + strings.Join(marks, ", ") + `)`
	}
	if _, err := s.store.exec(ctx, q, args...); err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*domain.Connection, error) {
	var conn domain.Connection
	var credsJSON, typesJSON, status string
	var incremental, periodic, full int64
	var multiHomed, active int
	var lastSync, created, updated int64

	if err := row.Scan(&conn.ID, &conn.OrganizationID, &conn.ProviderType, &conn.Name, &credsJSON,
		&incremental, &periodic, &full, &typesJSON, &conn.SyncConfig.PageSize,
		&multiHomed, &active, &status, &lastSync, &conn.LastError, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning connection: %w", err)
	}

	if err := json.Unmarshal([]byte(credsJSON), &conn.Credentials); err != nil {
		return nil, fmt.Errorf("unmarshalling credentials: %w", err)
	}
	if err := json.Unmarshal([]byte(typesJSON), &conn.SyncConfig.EntityTypes); err != nil {
		return nil, fmt.Errorf("unmarshalling entity types: %w", err)
	}

	conn.SyncConfig.IncrementalInterval = time.Duration(incremental)
	conn.SyncConfig.PeriodicInterval = time.Duration(periodic)
	conn.SyncConfig.FullSyncInterval = time.Duration(full)
	conn.MultiHomed = multiHomed != 0
	conn.IsActive = active != 0
	conn.Status = domain.ConnectionStatus(status)
	conn.LastSyncAt = fromNanos(lastSync)
	conn.CreatedAt = fromNanos(created)
	conn.UpdatedAt = fromNanos(updated)
	return &conn, nil
}

// ==================== Sync State Store ====================

// syncStateStore implements driven.SyncStateStore.
type syncStateStore struct {
	store *Store
}

var _ driven.SyncStateStore = (*syncStateStore)(nil)

const syncStateColumns = `connection_id, entity_type, organization_id, last_cursor, cursor_cadence,
	cursor_since, walk_started_at, last_incremental_at, last_periodic_at, last_full_sync_at,
	last_full_sync_started_at, last_error, updated_at`

// Save stores or updates the state of a (connection, entity type) pair.
func (s *syncStateStore) Save(ctx context.Context, state domain.SyncState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	_, err := s.store.exec(ctx, `
		INSERT INTO sync_states (`+syncStateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(connection_id, entity_type) DO UPDATE SET
			organization_id = excluded.organization_id,
			last_cursor = excluded.last_cursor,
			cursor_cadence = excluded.cursor_cadence,
			cursor_since = excluded.cursor_since,
			walk_started_at = excluded.walk_started_at,
			last_incremental_at = excluded.last_incremental_at,
			last_periodic_at = excluded.last_periodic_at,
			last_full_sync_at = excluded.last_full_sync_at,
			last_full_sync_started_at = excluded.last_full_sync_started_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, state.ConnectionID, string(state.EntityType), state.OrganizationID, state.LastCursor,
		string(state.CursorCadence), toNanos(state.CursorSince), toNanos(state.WalkStartedAt),
		toNanos(state.LastIncrementalAt), toNanos(state.LastPeriodicAt), toNanos(state.LastFullSyncAt),
		toNanos(state.LastFullSyncStartedAt), state.LastError, toNanos(state.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}
	return nil
}

// Get retrieves the state of a pair.
func (s *syncStateStore) Get(ctx context.Context, connectionID string, entityType domain.EntityType) (*domain.SyncState, error) {
	row := s.store.queryRow(ctx, `SELECT `+syncStateColumns+` FROM sync_states
		WHERE connection_id = ? AND entity_type = ?`, connectionID, string(entityType))
	state, err := scanSyncState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return state, err
}

// List returns every state of a connection, ordered by entity type.
func (s *syncStateStore) List(ctx context.Context, connectionID string) ([]domain.SyncState, error) {
	rows, err := s.store.query(ctx, `SELECT `+syncStateColumns+` FROM sync_states
		WHERE connection_id = ? ORDER BY entity_type`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("querying sync states: %w", err)
	}
	defer rows.Close()

	var states []domain.SyncState //nolint:prealloc // size unknown from query
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync states: %w", err)
	}
	return states, nil
}

// Delete removes every state of a connection.
func (s *syncStateStore) Delete(ctx context.Context, connectionID string) error {
	if _, err := s.store.exec(ctx, "DELETE FROM sync_states WHERE connection_id = ?", connectionID); err != nil {
		return fmt.Errorf("deleting sync states: %w", err)
	}
	return nil
}

func scanSyncState(row rowScanner) (*domain.SyncState, error) {
	var st domain.SyncState
	var entityType, cadence string
	var since, walkStarted, incremental, periodic, full, fullStarted, updated int64

	if err := row.Scan(&st.ConnectionID, &entityType, &st.OrganizationID, &st.LastCursor, &cadence,
		&since, &walkStarted, &incremental, &periodic, &full, &fullStarted, &st.LastError, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning sync state: %w", err)
	}

	st.EntityType = domain.EntityType(entityType)
	st.CursorCadence = domain.Cadence(cadence)
	st.CursorSince = fromNanos(since)
	st.WalkStartedAt = fromNanos(walkStarted)
	st.LastIncrementalAt = fromNanos(incremental)
	st.LastPeriodicAt = fromNanos(periodic)
	st.LastFullSyncAt = fromNanos(full)
	st.LastFullSyncStartedAt = fromNanos(fullStarted)
	st.UpdatedAt = fromNanos(updated)
	return &st, nil
}
