package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

func TestSyncStateStore_SaveAndGet(t *testing.T) {
	store := NewSyncStateStore()
	ctx := context.Background()
	now := time.Now()

	state := domain.SyncState{
		OrganizationID: "org-1",
		ConnectionID:   "c1",
		EntityType:     domain.EntityVehicles,
		LastCursor:     "page-3",
		CursorCadence:  domain.CadenceFull,
		WalkStartedAt:  now,
	}
	require.NoError(t, store.Save(ctx, state))

	got, err := store.Get(ctx, "c1", domain.EntityVehicles)
	require.NoError(t, err)
	assert.Equal(t, "page-3", got.LastCursor)
	assert.Equal(t, domain.CadenceFull, got.CursorCadence)
	assert.True(t, now.Equal(got.WalkStartedAt))

	_, err = store.Get(ctx, "c1", domain.EntityTruckers)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncStateStore_Update(t *testing.T) {
	store := NewSyncStateStore()
	ctx := context.Background()

	state := domain.SyncState{ConnectionID: "c1", EntityType: domain.EntityInvoices, LastCursor: "a"}
	require.NoError(t, store.Save(ctx, state))
	state.LastCursor = ""
	state.LastIncrementalAt = time.Now()
	require.NoError(t, store.Save(ctx, state))

	got, err := store.Get(ctx, "c1", domain.EntityInvoices)
	require.NoError(t, err)
	assert.False(t, got.HasPendingWalk())
	assert.False(t, got.LastIncrementalAt.IsZero())
}

func TestSyncStateStore_ListAndDelete(t *testing.T) {
	store := NewSyncStateStore()
	ctx := context.Background()

	for _, s := range []domain.SyncState{
		{ConnectionID: "c1", EntityType: domain.EntityVehicles},
		{ConnectionID: "c1", EntityType: domain.EntityAddresses},
		{ConnectionID: "c2", EntityType: domain.EntityVehicles},
	} {
		require.NoError(t, store.Save(ctx, s))
	}

	states, err := store.List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, domain.EntityAddresses, states[0].EntityType)
	assert.Equal(t, domain.EntityVehicles, states[1].EntityType)

	require.NoError(t, store.Delete(ctx, "c1"))

	states, err = store.List(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, states)

	_, err = store.Get(ctx, "c2", domain.EntityVehicles)
	assert.NoError(t, err)
}
