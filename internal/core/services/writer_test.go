package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fleetsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

func vehicleEntity(key string, liftgate bool) *domain.CanonicalEntity {
	return &domain.CanonicalEntity{
		Type:           domain.EntityVehicles,
		NaturalKey:     key,
		OrganizationID: "org-1",
		ConnectionID:   "c1",
		Fields:         &domain.Vehicle{UnitNumber: key, HasLiftgate: liftgate},
	}
}

func TestWriter_Upsert(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	w := NewWriter(store)
	clock := seedTime
	w.now = func() time.Time { return clock }

	e := vehicleEntity("T-1", false)
	res, err := w.Upsert(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertInserted, res)
	assert.Equal(t, int64(1), e.SyncVersion)
	assert.NotEmpty(t, e.Checksum)

	clock = clock.Add(time.Hour)
	same := vehicleEntity("T-1", false)
	res, err = w.Upsert(ctx, same)
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertUnchanged, res)
	assert.Equal(t, int64(1), same.SyncVersion)

	stored, err := store.Get(ctx, domain.EntityVehicles, "c1", "T-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.SyncVersion)
	assert.True(t, clock.Equal(stored.SyncedAt), "unchanged upsert refreshes SyncedAt")

	changed := vehicleEntity("T-1", true)
	res, err = w.Upsert(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertUpdated, res)
	assert.Equal(t, int64(2), changed.SyncVersion)
	assert.NotEqual(t, e.Checksum, changed.Checksum)

	stored, err = store.Get(ctx, domain.EntityVehicles, "c1", "T-1")
	require.NoError(t, err)
	assert.True(t, stored.Fields.(*domain.Vehicle).HasLiftgate)
	assert.Equal(t, 1, store.Count())
}

func TestWriter_RawPayloadDoesNotAffectChecksum(t *testing.T) {
	ctx := context.Background()
	w := NewWriter(memory.NewEntityStore())

	first := vehicleEntity("T-1", true)
	first.RawPayload = []byte(`{"id":"T-1","etag":"a"}`)
	_, err := w.Upsert(ctx, first)
	require.NoError(t, err)

	second := vehicleEntity("T-1", true)
	second.RawPayload = []byte(`{"id":"T-1","etag":"b"}`)
	res, err := w.Upsert(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertUnchanged, res)
}

// racingStore lets another writer commit between the read and the CAS.
type racingStore struct {
	*memory.EntityStore
	raced bool
}

func (s *racingStore) CompareAndSwap(ctx context.Context, e *domain.CanonicalEntity, sum string, version int64) error {
	if !s.raced {
		s.raced = true
		other := vehicleEntity(e.NaturalKey, false)
		other.Fields.(*domain.Vehicle).Make = "Volvo"
		other.Checksum = "other"
		other.SyncVersion = version + 1
		if err := s.EntityStore.CompareAndSwap(ctx, other, sum, version); err != nil {
			return err
		}
	}
	return s.EntityStore.CompareAndSwap(ctx, e, sum, version)
}

func TestWriter_RetriesCompareAndSwapConflict(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{EntityStore: memory.NewEntityStore()}
	w := NewWriter(store)

	_, err := w.Upsert(ctx, vehicleEntity("T-1", false))
	require.NoError(t, err)

	changed := vehicleEntity("T-1", true)
	res, err := w.Upsert(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertUpdated, res)
	assert.Equal(t, int64(3), changed.SyncVersion)

	stored, err := store.Get(ctx, domain.EntityVehicles, "c1", "T-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.SyncVersion)
	assert.True(t, stored.Fields.(*domain.Vehicle).HasLiftgate)
}

func TestWriter_RejectsInvalidEntities(t *testing.T) {
	w := NewWriter(memory.NewEntityStore())

	tests := map[string]func(e *domain.CanonicalEntity){
		"no organization":  func(e *domain.CanonicalEntity) { e.OrganizationID = "" },
		"no connection":    func(e *domain.CanonicalEntity) { e.ConnectionID = "" },
		"no natural key":   func(e *domain.CanonicalEntity) { e.NaturalKey = "" },
		"no fields":        func(e *domain.CanonicalEntity) { e.Fields = nil },
		"unknown type":     func(e *domain.CanonicalEntity) { e.Type = "loads" },
		"mismatched field": func(e *domain.CanonicalEntity) { e.Fields = &domain.Invoice{Number: "1"} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			e := vehicleEntity("T-1", false)
			mutate(e)
			_, err := w.Upsert(context.Background(), e)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	_, err := w.Upsert(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
