package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

func TestRunLogStore_StartFinishGet(t *testing.T) {
	store := NewRunLogStore()
	ctx := context.Background()

	run := &domain.SyncRun{
		ID:           "run-1",
		ConnectionID: "c1",
		EntityType:   domain.EntityVehicles,
		Cadence:      domain.CadenceFull,
		Status:       domain.RunRunning,
		StartedAt:    time.Now(),
	}
	require.NoError(t, store.Start(ctx, run))
	assert.ErrorIs(t, store.Start(ctx, run), domain.ErrAlreadyExists)

	run.Status = domain.RunSucceeded
	run.PagesProcessed = 3
	run.Errors = []string{"skipped T-9"}
	require.NoError(t, store.Finish(ctx, run))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, got.Status)
	assert.Equal(t, 3, got.PagesProcessed)
	assert.Equal(t, []string{"skipped T-9"}, got.Errors)

	assert.ErrorIs(t, store.Finish(ctx, &domain.SyncRun{ID: "unknown"}), domain.ErrNotFound)
	_, err = store.Get(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunLogStore_ListAndPrune(t *testing.T) {
	store := NewRunLogStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Start(ctx, &domain.SyncRun{
			ID:           fmt.Sprintf("veh-%d", i),
			ConnectionID: "c1",
			EntityType:   domain.EntityVehicles,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Start(ctx, &domain.SyncRun{
		ID:           "inv-0",
		ConnectionID: "c1",
		EntityType:   domain.EntityInvoices,
		StartedAt:    base,
	}))

	runs, err := store.List(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "veh-4", runs[0].ID)
	assert.Equal(t, "veh-3", runs[1].ID)

	require.NoError(t, store.Prune(ctx, 2))

	runs, err = store.List(ctx, "c1", 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"veh-4", "veh-3", "inv-0"}, ids)
}
