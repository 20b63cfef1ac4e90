package connectiondetail

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

type mockConnectionService struct {
	driving.ConnectionService
	health      *domain.ConnectionHealth
	healthErr   error
	reset       []string
	deactivated []string
}

func (m *mockConnectionService) Health(_ context.Context, organizationID, connectionID string) (*domain.ConnectionHealth, error) {
	if m.healthErr != nil {
		return nil, m.healthErr
	}
	if m.health != nil {
		return m.health, nil
	}
	return &domain.ConnectionHealth{ConnectionID: connectionID, OrganizationID: organizationID, IsActive: true}, nil
}

func (m *mockConnectionService) Reset(_ context.Context, id string) error {
	m.reset = append(m.reset, id)
	return nil
}

func (m *mockConnectionService) Deactivate(_ context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

type mockSyncOrchestrator struct {
	driving.SyncOrchestrator
	active     []driving.SyncStatus
	runs       []domain.SyncRun
	result     []domain.SyncRun
	runErr     error
	historyLim int
	cadence    domain.Cadence
}

func (m *mockSyncOrchestrator) Status(context.Context, string) ([]driving.SyncStatus, error) {
	return m.active, nil
}

func (m *mockSyncOrchestrator) History(_ context.Context, _ string, limit int) ([]domain.SyncRun, error) {
	m.historyLim = limit
	return m.runs, nil
}

func (m *mockSyncOrchestrator) RunConnection(_ context.Context, _ string, cadence domain.Cadence) ([]domain.SyncRun, error) {
	m.cadence = cadence
	return m.result, m.runErr
}

func testConnection() domain.Connection {
	return domain.Connection{
		ID:             "conn-1",
		OrganizationID: "org-1",
		ProviderType:   "demotms",
		Name:           "Dispatch",
		IsActive:       true,
		Status:         domain.ConnectionConnected,
	}
}

func newTestView(conns *mockConnectionService, orch *mockSyncOrchestrator) *View {
	return NewView(styles.DefaultStyles(), conns, orch)
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestView_InitWithoutConnection(t *testing.T) {
	v := newTestView(&mockConnectionService{}, &mockSyncOrchestrator{})

	assert.Nil(t, v.Init())
}

func TestView_LoadDetails(t *testing.T) {
	started := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	conns := &mockConnectionService{health: &domain.ConnectionHealth{
		ConnectionID: "conn-1",
		IsActive:     true,
		Status:       domain.ConnectionError,
		LastError:    "token rejected",
		EntityStates: []domain.SyncState{
			{EntityType: domain.EntityVehicles, LastIncrementalAt: started, LastCursor: "3", CursorCadence: domain.CadenceFull},
		},
	}}
	orch := &mockSyncOrchestrator{runs: []domain.SyncRun{
		{EntityType: domain.EntityVehicles, Cadence: domain.CadenceFull, Status: domain.RunFailed, StartedAt: started, EntitiesFailed: 2},
	}}
	v := newTestView(conns, orch)

	cmd := v.SetConnection(testConnection())
	require.NotNil(t, cmd)
	v, tick := v.Update(cmd())

	assert.Nil(t, tick)
	assert.Equal(t, HistoryLimit, orch.historyLim)
	require.NotNil(t, v.Health())
	assert.Len(t, v.Runs(), 1)

	out := v.View()
	assert.Contains(t, out, "Dispatch")
	assert.Contains(t, out, "token rejected")
	assert.Contains(t, out, "vehicles")
	assert.Contains(t, out, "resumes full walk")
	assert.Contains(t, out, "Recent runs")
	assert.Contains(t, out, "2 failed")
}

func TestView_ActiveRunsSchedulePolling(t *testing.T) {
	orch := &mockSyncOrchestrator{active: []driving.SyncStatus{
		{EntityType: domain.EntityTruckers, Cadence: domain.CadenceIncremental, Running: true, PagesProcessed: 4},
	}}
	v := newTestView(&mockConnectionService{}, orch)

	v, tick := v.Update(v.SetConnection(testConnection())())

	assert.NotNil(t, tick)
	assert.Contains(t, v.View(), "Running")
	assert.Contains(t, v.View(), "4 pages")

	_, cmd := v.Update(messages.Tick{ConnectionID: "conn-1"})
	assert.NotNil(t, cmd)

	_, cmd = v.Update(messages.Tick{ConnectionID: "other"})
	assert.Nil(t, cmd)
}

func TestView_LoadError(t *testing.T) {
	v := newTestView(&mockConnectionService{healthErr: domain.ErrNotFound}, &mockSyncOrchestrator{})

	v, _ = v.Update(v.SetConnection(testConnection())())

	assert.ErrorIs(t, v.Err(), domain.ErrNotFound)
	assert.Contains(t, v.View(), "Error: not found")
}

func TestView_IgnoresOtherConnections(t *testing.T) {
	v := newTestView(&mockConnectionService{}, &mockSyncOrchestrator{})
	v.SetConnection(testConnection())

	v, cmd := v.Update(messages.DetailLoaded{ConnectionID: "conn-2", Err: errors.New("x")})

	assert.Nil(t, cmd)
	assert.NoError(t, v.Err())
}

func TestView_Sync(t *testing.T) {
	orch := &mockSyncOrchestrator{result: []domain.SyncRun{
		{EntityType: domain.EntityVehicles, Status: domain.RunSucceeded, EntitiesUpserted: 5},
		{EntityType: domain.EntityTruckers, Status: domain.RunSucceeded, EntitiesUpserted: 2},
	}}
	v := newTestView(&mockConnectionService{}, orch)
	v.SetConnection(testConnection())

	v, cmd := v.Update(keyPress('s'))
	require.NotNil(t, cmd)
	assert.True(t, v.Syncing())
	assert.Contains(t, v.View(), "Syncing...")

	// A second press while running is refused.
	_, again := v.Update(keyPress('s'))
	assert.Nil(t, again)
	assert.Equal(t, "A sync is already running.", v.Notice())

	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	finished, ok := batch[0]().(messages.SyncFinished)
	require.True(t, ok)
	assert.Equal(t, domain.CadenceIncremental, orch.cadence)

	v, reload := v.Update(finished)
	assert.NotNil(t, reload)
	assert.False(t, v.Syncing())
	assert.Equal(t, "incremental sync finished: 7 entities upserted.", v.Notice())
}

func TestView_SyncFailures(t *testing.T) {
	orch := &mockSyncOrchestrator{
		result: []domain.SyncRun{{Status: domain.RunFailed}, {Status: domain.RunSucceeded}},
		runErr: domain.ErrFatal,
	}
	v := newTestView(&mockConnectionService{}, orch)
	v.SetConnection(testConnection())

	v, _ = v.Update(messages.SyncFinished{ConnectionID: "conn-1", Cadence: domain.CadenceFull, Runs: orch.result, Err: orch.runErr})

	assert.Equal(t, "full sync: 1 of 2 entity types failed.", v.Notice())
	assert.ErrorIs(t, v.Err(), domain.ErrFatal)
}

func TestView_SyncInactiveConnection(t *testing.T) {
	v := newTestView(&mockConnectionService{}, &mockSyncOrchestrator{})
	conn := testConnection()
	conn.IsActive = false
	v.SetConnection(conn)

	v, cmd := v.Update(keyPress('f'))

	assert.Nil(t, cmd)
	assert.False(t, v.Syncing())
	assert.Equal(t, "Connection is inactive.", v.Notice())
}

func TestView_ResetAndDeactivate(t *testing.T) {
	conns := &mockConnectionService{}
	v := newTestView(conns, &mockSyncOrchestrator{})
	v.SetConnection(testConnection())

	_, cmd := v.Update(keyPress('x'))
	require.NotNil(t, cmd)
	changed, ok := cmd().(messages.ConnectionChanged)
	require.True(t, ok)
	assert.Equal(t, []string{"conn-1"}, conns.reset)

	v, reload := v.Update(changed)
	assert.NotNil(t, reload)
	assert.Equal(t, "Connection reset.", v.Notice())

	_, cmd = v.Update(keyPress('d'))
	require.NotNil(t, cmd)
	v, _ = v.Update(cmd())
	assert.Equal(t, []string{"conn-1"}, conns.deactivated)
	assert.False(t, v.Connection().IsActive)
}

func TestView_EscGoesBack(t *testing.T) {
	v := newTestView(&mockConnectionService{}, &mockSyncOrchestrator{})

	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, messages.ViewChanged{View: messages.ViewConnections}, cmd())
}
