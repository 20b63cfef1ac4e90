package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

func newTestApp(t *testing.T, conns *MockConnectionService, sync *MockSyncOrchestrator) *App {
	t.Helper()
	if conns == nil {
		conns = &MockConnectionService{}
	}
	if sync == nil {
		sync = &MockSyncOrchestrator{}
	}
	app, err := NewApp(&Ports{Connections: conns, Sync: sync}, "org-1")
	require.NoError(t, err)
	app.SetDimensions(100, 30)
	return app
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

func TestNewApp(t *testing.T) {
	app, err := NewApp(&Ports{Connections: &MockConnectionService{}, Sync: &MockSyncOrchestrator{}}, "org-1")

	require.NoError(t, err)
	assert.Equal(t, messages.ViewConnections, app.CurrentView())
	assert.False(t, app.Ready())
	assert.Equal(t, "Initialising...", app.View())
}

func TestNewApp_Errors(t *testing.T) {
	_, err := NewApp(&Ports{Sync: &MockSyncOrchestrator{}}, "org-1")
	assert.ErrorIs(t, err, ErrMissingConnectionService)

	_, err = NewApp(&Ports{Connections: &MockConnectionService{}, Sync: &MockSyncOrchestrator{}}, "")
	assert.ErrorIs(t, err, ErrMissingOrganization)
}

func TestApp_WithContext(t *testing.T) {
	app := newTestApp(t, nil, nil)

	type contextKey string
	ctx := context.WithValue(context.Background(), contextKey("key"), "value")

	assert.Same(t, app, app.WithContext(ctx))
}

func TestApp_InitLoadsConnections(t *testing.T) {
	var gotOrg string
	app := newTestApp(t, &MockConnectionService{
		ListFunc: func(_ context.Context, organizationID string) ([]domain.Connection, error) {
			gotOrg = organizationID
			return []domain.Connection{testConnection()}, nil
		},
	}, nil)

	require.NotNil(t, app.Init())
	assert.Equal(t, status.StateLoading, app.StatusBar().State())

	// Run the list load directly; the batch also carries the window title.
	msg := app.connectionsView.Init()()
	assert.Equal(t, "org-1", gotOrg)

	app.Update(msg)
	assert.Equal(t, status.StateReady, app.StatusBar().State())
	assert.Equal(t, 1, app.StatusBar().Count())
	assert.Contains(t, app.View(), "Dispatch")
}

func TestApp_ConnectionsLoadError(t *testing.T) {
	app := newTestApp(t, nil, nil)

	app.Update(messages.ConnectionsLoaded{Err: errors.New("store down")})

	assert.EqualError(t, app.Err(), "store down")
	assert.Equal(t, status.StateError, app.StatusBar().State())
	assert.Contains(t, app.View(), "store down")
}

func TestApp_WindowSize(t *testing.T) {
	app, err := NewApp(&Ports{Connections: &MockConnectionService{}, Sync: &MockSyncOrchestrator{}}, "org-1")
	require.NoError(t, err)

	_, cmd := app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Nil(t, cmd)
	assert.True(t, app.Ready())
	assert.Equal(t, 120, app.StatusBar().Width())
}

func TestApp_SelectConnectionOpensDetail(t *testing.T) {
	app := newTestApp(t, nil, nil)

	_, cmd := app.Update(messages.ConnectionSelected{Connection: testConnection()})

	assert.Equal(t, messages.ViewConnectionDetail, app.CurrentView())
	assert.Equal(t, status.StateDetail, app.StatusBar().State())
	require.NotNil(t, cmd)

	msg := cmd()
	loaded, ok := msg.(messages.DetailLoaded)
	require.True(t, ok)
	assert.Equal(t, "conn-1", loaded.ConnectionID)

	app.Update(loaded)
	assert.Contains(t, app.View(), "Dispatch")
	assert.Contains(t, app.View(), "demotms")
}

func TestApp_EscReturnsToConnections(t *testing.T) {
	app := newTestApp(t, nil, nil)
	app.Update(messages.ConnectionSelected{Connection: testConnection()})

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	changed, ok := cmd().(messages.ViewChanged)
	require.True(t, ok)

	_, cmd = app.Update(changed)
	assert.Equal(t, messages.ViewConnections, app.CurrentView())
	assert.NotNil(t, cmd)
}

func TestApp_SyncFromDetail(t *testing.T) {
	var gotCadence domain.Cadence
	app := newTestApp(t, nil, &MockSyncOrchestrator{
		RunConnectionFunc: func(_ context.Context, _ string, cadence domain.Cadence) ([]domain.SyncRun, error) {
			gotCadence = cadence
			return []domain.SyncRun{{EntityType: domain.EntityVehicles, Status: domain.RunSucceeded, EntitiesUpserted: 3}}, nil
		},
	})
	app.Update(messages.ConnectionSelected{Connection: testConnection()})

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	require.NotNil(t, cmd)
	assert.Equal(t, status.StateSyncing, app.StatusBar().State())

	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	require.NotEmpty(t, batch)
	finished, ok := batch[0]().(messages.SyncFinished)
	require.True(t, ok)
	assert.Equal(t, domain.CadenceFull, gotCadence)

	app.Update(finished)
	assert.Equal(t, status.StateDetail, app.StatusBar().State())
	assert.Contains(t, app.StatusBar().Message(), "3 entities upserted")
}

func TestApp_HelpToggle(t *testing.T) {
	app := newTestApp(t, nil, nil)

	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	assert.Equal(t, messages.ViewHelp, app.CurrentView())
	assert.Contains(t, app.View(), "full sync")

	// q closes help instead of quitting.
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.Nil(t, cmd)
	assert.Equal(t, messages.ViewConnections, app.CurrentView())
}

func TestApp_Quit(t *testing.T) {
	app := newTestApp(t, nil, nil)

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = app.Update(messages.Quit{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestApp_ErrorOccurred(t *testing.T) {
	app := newTestApp(t, nil, nil)

	app.Update(messages.ErrorOccurred{Err: errors.New("boom")})

	assert.EqualError(t, app.Err(), "boom")
	assert.Equal(t, status.StateError, app.StatusBar().State())
	assert.Equal(t, "boom", app.StatusBar().Message())
}
