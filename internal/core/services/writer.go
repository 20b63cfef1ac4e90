package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/fleetsync/internal/checksum"
	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/metrics"
)

// Writer is the only component that writes canonical entities.
// Upserts are idempotent: the checksum decides whether anything changed.
type Writer struct {
	store driven.EntityStore
	retry *RetryPolicy
	now   func() time.Time
}

// NewWriter creates a writer. Conflicts are retried with a short backoff.
func NewWriter(store driven.EntityStore) *Writer {
	return &Writer{
		store: store,
		retry: NewRetryPolicy(domain.RetrySettings{
			MaxAttempts: 5,
			BaseDelay:   5 * time.Millisecond,
			MaxDelay:    100 * time.Millisecond,
			Multiplier:  2,
		}),
		now: time.Now,
	}
}

// Upsert inserts, updates or touches an entity.
//
//   - absent: insert with SyncVersion 1
//   - same checksum: refresh SyncedAt only, version untouched
//   - different checksum: replace fields and bump SyncVersion, guarded by
//     compare-and-set on the checksum and version that were read
//
// CAS mismatches are re-read and retried transparently.
// entity is updated in place with the stored checksum, version and SyncedAt.
func (w *Writer) Upsert(ctx context.Context, entity *domain.CanonicalEntity) (domain.UpsertResult, error) {
	if err := validateEntity(entity); err != nil {
		return "", err
	}

	sum, err := checksum.Compute(entity)
	if err != nil {
		return "", err
	}

	var result domain.UpsertResult
	err = w.retry.Do(ctx, func(ctx context.Context) error {
		var aerr error
		result, aerr = w.attempt(ctx, entity, sum)
		return aerr
	}, nil)
	if err != nil {
		return "", fmt.Errorf("upsert %s/%s: %w", entity.Type, entity.NaturalKey, err)
	}

	metrics.EntitiesWritten.WithLabelValues(string(entity.Type), string(result)).Inc()
	return result, nil
}

func (w *Writer) attempt(ctx context.Context, entity *domain.CanonicalEntity, sum string) (domain.UpsertResult, error) {
	now := w.now()

	existing, err := w.store.Get(ctx, entity.Type, entity.ConnectionID, entity.NaturalKey)
	if errors.Is(err, domain.ErrNotFound) {
		entity.Checksum = sum
		entity.SyncVersion = 1
		entity.SyncedAt = now
		if err := w.store.Insert(ctx, entity); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return "", fmt.Errorf("%w: concurrent insert", domain.ErrWriteConflict)
			}
			return "", err
		}
		return domain.UpsertInserted, nil
	}
	if err != nil {
		return "", fmt.Errorf("read entity: %w", err)
	}

	if existing.Checksum == sum {
		if err := w.store.Touch(ctx, entity.Type, entity.ConnectionID, entity.NaturalKey, sum, now); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return "", fmt.Errorf("%w: entity removed during touch", domain.ErrWriteConflict)
			}
			return "", err
		}
		entity.Checksum = sum
		entity.SyncVersion = existing.SyncVersion
		entity.SyncedAt = now
		return domain.UpsertUnchanged, nil
	}

	entity.Checksum = sum
	entity.SyncVersion = existing.SyncVersion + 1
	entity.SyncedAt = now
	if err := w.store.CompareAndSwap(ctx, entity, existing.Checksum, existing.SyncVersion); err != nil {
		return "", err
	}
	return domain.UpsertUpdated, nil
}

func validateEntity(e *domain.CanonicalEntity) error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil entity", domain.ErrInvalidInput)
	case !e.Type.IsValid():
		return fmt.Errorf("%w: entity type %q", domain.ErrInvalidInput, e.Type)
	case e.OrganizationID == "":
		return fmt.Errorf("%w: entity has no organization", domain.ErrInvalidInput)
	case e.ConnectionID == "":
		return fmt.Errorf("%w: entity has no connection", domain.ErrInvalidInput)
	case e.NaturalKey == "":
		return fmt.Errorf("%w: entity has no natural key", domain.ErrInvalidInput)
	case e.Fields == nil:
		return fmt.Errorf("%w: entity has no fields", domain.ErrInvalidInput)
	case e.Fields.EntityType() != e.Type:
		return fmt.Errorf("%w: %s fields on %s entity", domain.ErrInvalidInput, e.Fields.EntityType(), e.Type)
	}
	return nil
}
