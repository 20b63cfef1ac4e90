// Package connectiondetail provides the single-connection view for the
// dashboard: health, per-entity-type sync state, live runs and history.
package connectiondetail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// HistoryLimit is the number of recent runs shown.
const HistoryLimit = 5

// RefreshInterval is how often the view polls while runs are active.
const RefreshInterval = 2 * time.Second

// View shows one connection.
type View struct {
	ctx               context.Context
	styles            *styles.Styles
	connectionService driving.ConnectionService
	syncOrchestrator  driving.SyncOrchestrator

	connection domain.Connection
	health     *domain.ConnectionHealth
	active     []driving.SyncStatus
	runs       []domain.SyncRun
	syncing    bool
	notice     string
	err        error
	width      int
	height     int
}

// NewView creates a new connection detail view.
func NewView(
	s *styles.Styles,
	connectionService driving.ConnectionService,
	syncOrchestrator driving.SyncOrchestrator,
) *View {
	return &View{
		ctx:               context.Background(),
		styles:            s,
		connectionService: connectionService,
		syncOrchestrator:  syncOrchestrator,
	}
}

// SetContext sets the context service calls run under.
func (v *View) SetContext(ctx context.Context) {
	v.ctx = ctx
}

// SetConnection switches the view to a connection and loads its details.
func (v *View) SetConnection(conn domain.Connection) tea.Cmd {
	v.connection = conn
	v.health = nil
	v.active = nil
	v.runs = nil
	v.syncing = false
	v.notice = ""
	v.err = nil
	return v.load()
}

// Init loads the current connection's details.
func (v *View) Init() tea.Cmd {
	if v.connection.ID == "" {
		return nil
	}
	return v.load()
}

func (v *View) load() tea.Cmd {
	ctx := v.ctx
	conn := v.connection
	return func() tea.Msg {
		msg := messages.DetailLoaded{ConnectionID: conn.ID}
		if v.connectionService == nil || v.syncOrchestrator == nil {
			msg.Err = errors.New("services not available")
			return msg
		}

		health, err := v.connectionService.Health(ctx, conn.OrganizationID, conn.ID)
		if err != nil {
			msg.Err = err
			return msg
		}
		msg.Health = health

		active, err := v.syncOrchestrator.Status(ctx, conn.ID)
		if err != nil {
			msg.Err = err
			return msg
		}
		msg.Active = active

		msg.Runs, msg.Err = v.syncOrchestrator.History(ctx, conn.ID, HistoryLimit)
		return msg
	}
}

func (v *View) tick() tea.Cmd {
	id := v.connection.ID
	return tea.Tick(RefreshInterval, func(time.Time) tea.Msg {
		return messages.Tick{ConnectionID: id}
	})
}

// Update handles messages for the detail view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.DetailLoaded:
		if msg.ConnectionID != v.connection.ID {
			return v, nil
		}
		v.err = msg.Err
		if msg.Err != nil {
			return v, nil
		}
		v.health = msg.Health
		v.active = msg.Active
		v.runs = msg.Runs
		if v.syncing || len(v.active) > 0 {
			return v, v.tick()
		}
		return v, nil

	case messages.Tick:
		if msg.ConnectionID != v.connection.ID {
			return v, nil
		}
		return v, v.load()

	case messages.SyncFinished:
		if msg.ConnectionID != v.connection.ID {
			return v, nil
		}
		v.syncing = false
		v.notice = summarise(msg)
		if msg.Err != nil {
			v.err = msg.Err
		}
		return v, v.load()

	case messages.ConnectionChanged:
		if msg.ConnectionID != v.connection.ID {
			return v, nil
		}
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.notice = fmt.Sprintf("Connection %s.", msg.Action)
		if msg.Action == "deactivated" {
			v.connection.IsActive = false
		}
		return v, v.load()
	}

	return v, nil
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewConnections}
		}
	case "r":
		return v, v.load()
	case "s":
		return v, v.startSync(domain.CadenceIncremental)
	case "f":
		return v, v.startSync(domain.CadenceFull)
	case "x":
		if v.connectionService != nil {
			return v, v.change("reset", v.connectionService.Reset)
		}
	case "d":
		if v.connectionService != nil {
			return v, v.change("deactivated", v.connectionService.Deactivate)
		}
	}
	return v, nil
}

func (v *View) startSync(cadence domain.Cadence) tea.Cmd {
	if v.syncing {
		v.notice = "A sync is already running."
		return nil
	}
	if !v.connection.IsActive {
		v.notice = "Connection is inactive."
		return nil
	}

	v.syncing = true
	v.notice = ""
	v.err = nil

	ctx := v.ctx
	id := v.connection.ID
	run := func() tea.Msg {
		runs, err := v.syncOrchestrator.RunConnection(ctx, id, cadence)
		return messages.SyncFinished{ConnectionID: id, Cadence: cadence, Runs: runs, Err: err}
	}
	return tea.Batch(run, v.tick())
}

func (v *View) change(action string, fn func(context.Context, string) error) tea.Cmd {
	ctx := v.ctx
	id := v.connection.ID
	return func() tea.Msg {
		return messages.ConnectionChanged{ConnectionID: id, Action: action, Err: fn(ctx, id)}
	}
}

func summarise(msg messages.SyncFinished) string {
	if msg.Err != nil && len(msg.Runs) == 0 {
		return fmt.Sprintf("%s sync failed.", msg.Cadence)
	}
	var failed, upserted int
	for i := range msg.Runs {
		if msg.Runs[i].Status == domain.RunFailed {
			failed++
		}
		upserted += msg.Runs[i].EntitiesUpserted
	}
	if failed > 0 {
		return fmt.Sprintf("%s sync: %d of %d entity types failed.", msg.Cadence, failed, len(msg.Runs))
	}
	return fmt.Sprintf("%s sync finished: %d entities upserted.", msg.Cadence, upserted)
}

// View renders the detail view.
func (v *View) View() string {
	var b strings.Builder

	name := v.connection.Name
	if name == "" {
		name = v.connection.ID
	}
	b.WriteString(v.styles.Title.Render(name))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 40))
	b.WriteString("\n\n")

	b.WriteString(v.renderSummary())

	if v.health != nil && len(v.health.EntityStates) > 0 {
		b.WriteString("\n")
		b.WriteString(v.styles.Subtitle.Render("Entity types"))
		b.WriteString("\n")
		for i := range v.health.EntityStates {
			b.WriteString(v.renderState(&v.health.EntityStates[i]))
		}
	}

	if len(v.active) > 0 {
		b.WriteString("\n")
		b.WriteString(v.styles.Subtitle.Render("Running"))
		b.WriteString("\n")
		for _, s := range v.active {
			b.WriteString(fmt.Sprintf("  %-18s %s: %d pages, %d upserted, %d unchanged\n",
				s.EntityType, s.Cadence, s.PagesProcessed, s.EntitiesUpserted, s.EntitiesUnchanged))
		}
	}

	if len(v.runs) > 0 {
		b.WriteString("\n")
		b.WriteString(v.styles.Subtitle.Render("Recent runs"))
		b.WriteString("\n")
		for i := range v.runs {
			b.WriteString(v.renderRun(&v.runs[i]))
		}
	}

	b.WriteString("\n")
	switch {
	case v.syncing:
		b.WriteString(v.styles.Warning.Render("Syncing..."))
		b.WriteString("\n")
	case v.err != nil:
		b.WriteString(v.styles.Error.Render(fmt.Sprintf("Error: %s", v.err.Error())))
		b.WriteString("\n")
	}
	if v.notice != "" {
		b.WriteString(v.styles.Normal.Render(v.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render("[s] sync  [f] full sync  [x] reset  [d] deactivate  [r] refresh  [esc] back"))
	return b.String()
}

func (v *View) renderSummary() string {
	var b strings.Builder
	status := v.connection.Status
	active := v.connection.IsActive
	lastSync := v.connection.LastSyncAt
	lastError := v.connection.LastError
	if v.health != nil {
		status = v.health.Status
		active = v.health.IsActive
		lastSync = v.health.LastSyncAt
		lastError = v.health.LastError
	}

	b.WriteString(fmt.Sprintf("Provider:   %s\n", v.connection.ProviderType))
	b.WriteString(fmt.Sprintf("Status:     %s\n", v.styles.ConnectionStatus(status)))
	if !active {
		b.WriteString(fmt.Sprintf("Active:     %s\n", v.styles.Muted.Render("no")))
	}
	b.WriteString(fmt.Sprintf("Last sync:  %s\n", formatTime(lastSync)))
	if lastError != "" {
		b.WriteString(fmt.Sprintf("Last error: %s\n", v.styles.Error.Render(lastError)))
	}
	return b.String()
}

func (v *View) renderState(s *domain.SyncState) string {
	line := fmt.Sprintf("  %-18s inc %s  full %s", s.EntityType,
		formatTime(s.LastIncrementalAt), formatTime(s.LastFullSyncAt))
	if s.HasPendingWalk() {
		line += v.styles.Warning.Render(fmt.Sprintf("  resumes %s walk", s.CursorCadence))
	}
	if s.LastError != "" {
		line += v.styles.Error.Render("  " + s.LastError)
	}
	return line + "\n"
}

func (v *View) renderRun(r *domain.SyncRun) string {
	return fmt.Sprintf("  %s %-18s %-11s %s  %d upserted, %d unchanged, %d failed\n",
		formatTime(r.StartedAt), r.EntityType, r.Cadence, v.styles.RunStatus(r.Status),
		r.EntitiesUpserted, r.EntitiesUnchanged, r.EntitiesFailed)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
}

// Connection returns the connection being shown.
func (v *View) Connection() domain.Connection {
	return v.connection
}

// Health returns the loaded health, if any.
func (v *View) Health() *domain.ConnectionHealth {
	return v.health
}

// Runs returns the loaded run history.
func (v *View) Runs() []domain.SyncRun {
	return v.runs
}

// Syncing reports whether a dashboard-triggered sync is in flight.
func (v *View) Syncing() bool {
	return v.syncing
}

// Notice returns the last action summary.
func (v *View) Notice() string {
	return v.notice
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}
