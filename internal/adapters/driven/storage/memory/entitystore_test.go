package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

func testVehicle(org, conn, key string, liftgate bool) *domain.CanonicalEntity {
	return &domain.CanonicalEntity{
		Type:           domain.EntityVehicles,
		NaturalKey:     key,
		OrganizationID: org,
		ConnectionID:   conn,
		Fields:         &domain.Vehicle{UnitNumber: key, HasLiftgate: liftgate},
		SyncedAt:       time.Now(),
		SyncVersion:    1,
		Checksum:       "sum-" + key,
	}
}

func TestEntityStore_InsertAndGet(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	e := testVehicle("org-1", "c1", "T-100", true)
	require.NoError(t, store.Insert(ctx, e))
	assert.ErrorIs(t, store.Insert(ctx, e), domain.ErrAlreadyExists)

	got, err := store.Get(ctx, domain.EntityVehicles, "c1", "T-100")
	require.NoError(t, err)
	v, ok := got.Fields.(*domain.Vehicle)
	require.True(t, ok)
	assert.True(t, v.HasLiftgate)

	// Mutating the returned copy leaves the stored entity untouched.
	v.HasLiftgate = false
	again, err := store.Get(ctx, domain.EntityVehicles, "c1", "T-100")
	require.NoError(t, err)
	assert.True(t, again.Fields.(*domain.Vehicle).HasLiftgate)

	_, err = store.Get(ctx, domain.EntityVehicles, "c2", "T-100")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEntityStore_CompareAndSwap(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	e := testVehicle("org-1", "c1", "T-100", false)
	require.NoError(t, store.Insert(ctx, e))

	updated := testVehicle("org-1", "c1", "T-100", true)
	updated.Checksum = "sum-2"
	updated.SyncVersion = 2

	assert.ErrorIs(t, store.CompareAndSwap(ctx, updated, "stale", 1), domain.ErrWriteConflict)
	assert.ErrorIs(t, store.CompareAndSwap(ctx, updated, "sum-T-100", 7), domain.ErrWriteConflict)
	require.NoError(t, store.CompareAndSwap(ctx, updated, "sum-T-100", 1))

	got, err := store.Get(ctx, domain.EntityVehicles, "c1", "T-100")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.SyncVersion)
	assert.Equal(t, "sum-2", got.Checksum)
}

func TestEntityStore_Touch(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	e := testVehicle("org-1", "c1", "T-100", false)
	require.NoError(t, store.Insert(ctx, e))

	later := e.SyncedAt.Add(time.Hour)
	require.NoError(t, store.Touch(ctx, domain.EntityVehicles, "c1", "T-100", "sum-T-100", later))
	assert.ErrorIs(t, store.Touch(ctx, domain.EntityVehicles, "c1", "T-100", "other", later), domain.ErrWriteConflict)

	got, err := store.Get(ctx, domain.EntityVehicles, "c1", "T-100")
	require.NoError(t, err)
	assert.True(t, later.Equal(got.SyncedAt))
	assert.Equal(t, int64(1), got.SyncVersion)
}

func TestEntityStore_QueryScopesByTenant(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	for _, e := range []*domain.CanonicalEntity{
		testVehicle("org-1", "c1", "B", false),
		testVehicle("org-1", "c1", "A", true),
		testVehicle("org-1", "c2", "C", false),
		testVehicle("org-2", "c9", "A", true),
	} {
		require.NoError(t, store.Insert(ctx, e))
	}

	_, err := store.Query(ctx, domain.EntityQuery{Type: domain.EntityVehicles})
	assert.ErrorIs(t, err, domain.ErrTenantScopeRequired)

	all, err := store.Query(ctx, domain.EntityQuery{OrganizationID: "org-1", Type: domain.EntityVehicles})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "A", all[0].NaturalKey)
	assert.Equal(t, "B", all[1].NaturalKey)
	assert.Equal(t, "C", all[2].NaturalKey)

	one, err := store.Query(ctx, domain.EntityQuery{OrganizationID: "org-1", ConnectionID: "c2"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "C", one[0].NaturalKey)

	paged, err := store.Query(ctx, domain.EntityQuery{OrganizationID: "org-1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "B", paged[0].NaturalKey)

	empty, err := store.Query(ctx, domain.EntityQuery{OrganizationID: "org-1", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEntityStore_DeleteStale(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()
	cutoff := time.Now()

	old := testVehicle("org-1", "c1", "old", false)
	old.SyncedAt = cutoff.Add(-time.Hour)
	fresh := testVehicle("org-1", "c1", "fresh", false)
	fresh.SyncedAt = cutoff.Add(time.Minute)
	otherConn := testVehicle("org-1", "c2", "old", false)
	otherConn.SyncedAt = cutoff.Add(-time.Hour)

	for _, e := range []*domain.CanonicalEntity{old, fresh, otherConn} {
		require.NoError(t, store.Insert(ctx, e))
	}

	n, err := store.DeleteStale(ctx, domain.EntityVehicles, "c1", cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, store.Count())

	_, err = store.Get(ctx, domain.EntityVehicles, "c1", "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
