package connections

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
	conns []domain.Connection
	err   error
	org   string
}

func (m *mockConnectionService) List(_ context.Context, organizationID string) ([]domain.Connection, error) {
	m.org = organizationID
	return m.conns, m.err
}

func sampleConnections() []domain.Connection {
	return []domain.Connection{
		{ID: "conn-1", Name: "Dispatch", ProviderType: "demotms", IsActive: true, Status: domain.ConnectionConnected,
			LastSyncAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)},
		{ID: "conn-2", ProviderType: "fleetcard", IsActive: false, Status: domain.ConnectionError},
	}
}

func loadedView(t *testing.T, svc *mockConnectionService) *View {
	t.Helper()
	v := NewView(styles.DefaultStyles(), svc, "org-1")
	cmd := v.Init()
	require.NotNil(t, cmd)
	assert.True(t, v.Loading())
	v, _ = v.Update(cmd())
	return v
}

func TestView_Load(t *testing.T) {
	svc := &mockConnectionService{conns: sampleConnections()}
	v := loadedView(t, svc)

	assert.Equal(t, "org-1", svc.org)
	assert.False(t, v.Loading())
	assert.NoError(t, v.Err())
	assert.Len(t, v.Connections(), 2)

	out := v.View()
	assert.Contains(t, out, "Dispatch")
	assert.Contains(t, out, "conn-2")
	assert.Contains(t, out, "inactive")
	assert.Contains(t, out, "never")
}

func TestView_LoadError(t *testing.T) {
	v := loadedView(t, &mockConnectionService{err: errors.New("store down")})

	assert.EqualError(t, v.Err(), "store down")
	assert.Contains(t, v.View(), "Error: store down")
}

func TestView_Empty(t *testing.T) {
	v := loadedView(t, &mockConnectionService{})

	assert.Contains(t, v.View(), "No connections registered.")
	assert.Contains(t, v.View(), "connection add --org org-1")
}

func TestView_NilService(t *testing.T) {
	v := NewView(styles.DefaultStyles(), nil, "org-1")
	msg := v.Init()()

	loaded, ok := msg.(messages.ConnectionsLoaded)
	require.True(t, ok)
	assert.Error(t, loaded.Err)
}

func TestView_Navigation(t *testing.T) {
	v := loadedView(t, &mockConnectionService{conns: sampleConnections()})

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, v.Selected())

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	assert.Equal(t, 1, v.Selected())

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, v.Selected())

	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	selected, ok := cmd().(messages.ConnectionSelected)
	require.True(t, ok)
	assert.Equal(t, "conn-2", selected.Connection.ID)

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	assert.Equal(t, 0, v.Selected())
}

func TestView_ReloadClampsSelection(t *testing.T) {
	svc := &mockConnectionService{conns: sampleConnections()}
	v := loadedView(t, svc)
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, 1, v.Selected())

	svc.conns = svc.conns[:1]
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	require.NotNil(t, cmd)
	assert.True(t, v.Loading())

	v, _ = v.Update(cmd())
	assert.Equal(t, 0, v.Selected())
}

func TestView_EnterWithoutConnections(t *testing.T) {
	v := loadedView(t, &mockConnectionService{})

	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}
