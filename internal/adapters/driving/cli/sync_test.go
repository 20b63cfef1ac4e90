package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

func TestSyncCmd_Use(t *testing.T) {
	assert.Equal(t, "sync [connection-id]", syncCmd.Use)
}

func TestSyncCmd_ServiceNotConfigured(t *testing.T) {
	withServices(t, Services{})

	_, err := execute(t, "sync", "conn-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync service not configured")
}

func TestSyncCmd_RequiresConnection(t *testing.T) {
	withServices(t, Services{Sync: &mockSyncOrchestrator{}})

	_, err := execute(t, "sync")
	assert.Error(t, err)
}

func TestSyncCmd_SingleEntityType(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	orch := &mockSyncOrchestrator{run: &domain.SyncRun{
		EntityType:       domain.EntityVehicles,
		Cadence:          domain.CadenceFull,
		Resumed:          true,
		Status:           domain.RunSucceeded,
		StartedAt:        start,
		FinishedAt:       start.Add(1500 * time.Millisecond),
		PagesProcessed:   3,
		EntitiesUpserted: 120,
	}}
	withServices(t, Services{Sync: orch})

	out, err := execute(t, "sync", "conn-1", "--type", "vehicles", "--cadence", "full")
	require.NoError(t, err)
	assert.Equal(t, domain.RunRequest{
		ConnectionID: "conn-1",
		EntityType:   domain.EntityVehicles,
		Cadence:      domain.CadenceFull,
	}, orch.lastReq)
	assert.Contains(t, out, "Synchronising vehicles for conn-1 (full)")
	assert.Contains(t, out, "succeeded (full, resumed)")
	assert.Contains(t, out, "3 pages, 120 upserted, 0 unchanged, 0 failed in 1.5s")
}

func TestSyncCmd_FailedRunIsPrintedAndReturned(t *testing.T) {
	orch := &mockSyncOrchestrator{
		run: &domain.SyncRun{
			EntityType: domain.EntityInvoices,
			Cadence:    domain.CadenceIncremental,
			Status:     domain.RunFailed,
			Errors:     []string{"provider unavailable"},
		},
		err: domain.ErrTransient,
	}
	withServices(t, Services{Sync: orch})

	out, err := execute(t, "sync", "conn-1", "-t", "invoices")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Contains(t, err.Error(), "sync failed")
	assert.Contains(t, out, "provider unavailable")
}

func TestSyncCmd_AllEntityTypes(t *testing.T) {
	orch := &mockSyncOrchestrator{runs: []domain.SyncRun{
		{EntityType: domain.EntityVehicles, Cadence: domain.CadencePeriodic, Status: domain.RunSucceeded},
		{EntityType: domain.EntityTruckers, Cadence: domain.CadencePeriodic, Status: domain.RunSucceeded},
	}}
	withServices(t, Services{Sync: orch})

	out, err := execute(t, "sync", "conn-1", "--cadence", "periodic")
	require.NoError(t, err)
	assert.Equal(t, domain.CadencePeriodic, orch.lastCadence)
	assert.Contains(t, out, "vehicles")
	assert.Contains(t, out, "truckers")
	assert.Contains(t, out, "Connection synchronised successfully.")

	orch.runs[1].Status = domain.RunFailed
	_, err = execute(t, "sync", "conn-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 entity types failed")
}

func TestSyncCmd_InvalidArguments(t *testing.T) {
	withServices(t, Services{Sync: &mockSyncOrchestrator{}})

	_, err := execute(t, "sync", "conn-1", "--cadence", "hourly")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = execute(t, "sync", "conn-1", "--type", "boats")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestSyncCmd_ServiceError(t *testing.T) {
	withServices(t, Services{Sync: &mockSyncOrchestrator{err: domain.ErrSyncInProgress}})

	_, err := execute(t, "sync", "conn-1")
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)
}

func TestSyncHistory(t *testing.T) {
	orch := &mockSyncOrchestrator{history: []domain.SyncRun{
		{EntityType: domain.EntityCarriers, Cadence: domain.CadenceIncremental, Status: domain.RunSucceeded},
	}}
	withServices(t, Services{Sync: orch})

	out, err := execute(t, "sync", "history", "conn-1", "-n", "5")
	require.NoError(t, err)
	assert.Equal(t, 5, orch.lastLimit)
	assert.Contains(t, out, "carriers")

	orch.history = nil
	out, err = execute(t, "sync", "history", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 10, orch.lastLimit)
	assert.Contains(t, out, "No runs recorded.")

	orch.err = errors.New("db down")
	_, err = execute(t, "sync", "history", "conn-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get history")
}
