package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

// ==================== Entity Store ====================

// entityStore implements driven.EntityStore.
type entityStore struct {
	store *Store
}

var _ driven.EntityStore = (*entityStore)(nil)

const entityColumns = `entity_type, connection_id, natural_key, organization_id, raw_payload,
	fields, source_updated_at, synced_at, sync_version, checksum`

// Get retrieves one entity by identity.
func (s *entityStore) Get(
	ctx context.Context,
	entityType domain.EntityType,
	connectionID, naturalKey string,
) (*domain.CanonicalEntity, error) {
	row := s.store.queryRow(ctx, `SELECT `+entityColumns+` FROM entities
		WHERE entity_type = ? AND connection_id = ? AND natural_key = ?`,
		string(entityType), connectionID, naturalKey)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

// Insert adds a new entity. An existing identity yields ErrAlreadyExists.
func (s *entityStore) Insert(ctx context.Context, e *domain.CanonicalEntity) error {
	fieldsJSON, err := marshalJSON(e.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}

	res, err := s.store.exec(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, connection_id, natural_key) DO NOTHING
	`, string(e.Type), e.ConnectionID, e.NaturalKey, e.OrganizationID, string(e.RawPayload),
		fieldsJSON, toNanos(e.SourceUpdatedAt), toNanos(e.SyncedAt), e.SyncVersion, e.Checksum)
	if err != nil {
		return fmt.Errorf("inserting entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting entity: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// CompareAndSwap replaces an entity if checksum and version still match.
func (s *entityStore) CompareAndSwap(
	ctx context.Context,
	e *domain.CanonicalEntity,
	expectedChecksum string,
	expectedVersion int64,
) error {
	fieldsJSON, err := marshalJSON(e.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}

	res, err := s.store.exec(ctx, `
		UPDATE entities SET
			organization_id = ?, raw_payload = ?, fields = ?, source_updated_at = ?,
			synced_at = ?, sync_version = ?, checksum = ?
		WHERE entity_type = ? AND connection_id = ? AND natural_key = ?
			AND checksum = ? AND sync_version = ?
	`, e.OrganizationID, string(e.RawPayload), fieldsJSON, toNanos(e.SourceUpdatedAt),
		toNanos(e.SyncedAt), e.SyncVersion, e.Checksum,
		string(e.Type), e.ConnectionID, e.NaturalKey, expectedChecksum, expectedVersion)
	if err != nil {
		return fmt.Errorf("updating entity: %w", err)
	}
	return expectOneRow(res)
}

// Touch refreshes SyncedAt when the stored checksum still matches.
func (s *entityStore) Touch(
	ctx context.Context,
	entityType domain.EntityType,
	connectionID, naturalKey, checksum string,
	syncedAt time.Time,
) error {
	res, err := s.store.exec(ctx, `
		UPDATE entities SET synced_at = ?
		WHERE entity_type = ? AND connection_id = ? AND natural_key = ? AND checksum = ?
	`, toNanos(syncedAt), string(entityType), connectionID, naturalKey, checksum)
	if err != nil {
		return fmt.Errorf("touching entity: %w", err)
	}
	return expectOneRow(res)
}

// Query lists entities of one tenant ordered by natural key.
func (s *entityStore) Query(ctx context.Context, q domain.EntityQuery) ([]domain.CanonicalEntity, error) {
	if q.OrganizationID == "" {
		return nil, domain.ErrTenantScopeRequired
	}

	where := []string{"organization_id = ?"}
	args := []any{q.OrganizationID}
	if q.Type != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(q.Type))
	}
	if q.ConnectionID != "" {
		where = append(where, "connection_id = ?")
		args = append(args, q.ConnectionID)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := s.store.query(ctx, `SELECT `+entityColumns+` FROM entities
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY natural_key, connection_id
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var out []domain.CanonicalEntity //nolint:prealloc // size unknown from query
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return out, nil
}

// DeleteStale removes entities of one connection and type last seen before cutoff.
func (s *entityStore) DeleteStale(
	ctx context.Context,
	entityType domain.EntityType,
	connectionID string,
	cutoff time.Time,
) (int, error) {
	res, err := s.store.exec(ctx, `
		DELETE FROM entities WHERE entity_type = ? AND connection_id = ? AND synced_at < ?
	`, string(entityType), connectionID, toNanos(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting stale entities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting stale entities: %w", err)
	}
	return int(n), nil
}

func scanEntity(row rowScanner) (*domain.CanonicalEntity, error) {
	var e domain.CanonicalEntity
	var entityType, raw, fieldsJSON string
	var sourceUpdated, synced int64

	if err := row.Scan(&entityType, &e.ConnectionID, &e.NaturalKey, &e.OrganizationID, &raw,
		&fieldsJSON, &sourceUpdated, &synced, &e.SyncVersion, &e.Checksum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entity: %w", err)
	}

	e.Type = domain.EntityType(entityType)
	fields, err := domain.DecodeFields(e.Type, []byte(fieldsJSON))
	if err != nil {
		return nil, err
	}
	e.Fields = fields
	if raw != "" {
		e.RawPayload = []byte(raw)
	}
	e.SourceUpdatedAt = fromNanos(sourceUpdated)
	e.SyncedAt = fromNanos(synced)
	return &e, nil
}

// expectOneRow maps a no-op conditional update to ErrWriteConflict.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrWriteConflict
	}
	return nil
}
