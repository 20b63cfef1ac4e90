package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/views/connectiondetail"
	"github.com/custodia-labs/fleetsync/internal/adapters/driving/tui/views/connections"
)

// App is the dashboard application following the Elm architecture.
// It implements tea.Model for use with Bubbletea.
type App struct {
	ports          *Ports
	ctx            context.Context
	organizationID string

	styles *styles.Styles
	keymap *keymap.KeyMap

	statusBar       *status.Bar
	connectionsView *connections.View
	detailView      *connectiondetail.View

	// currentView tracks which view is active; previousView is restored when help closes.
	currentView  messages.ViewType
	previousView messages.ViewType

	err error

	width  int
	height int
	ready  bool
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates the dashboard for one organization.
func NewApp(ports *Ports, organizationID string) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}
	if organizationID == "" {
		return nil, fmt.Errorf("creating app: %w", ErrMissingOrganization)
	}

	s := styles.DefaultStyles()
	km := keymap.DefaultKeyMap()

	return &App{
		ports:           ports,
		ctx:             context.Background(),
		organizationID:  organizationID,
		styles:          s,
		keymap:          km,
		statusBar:       status.NewBar(s, km),
		connectionsView: connections.NewView(s, ports.Connections, organizationID),
		detailView:      connectiondetail.NewView(s, ports.Connections, ports.Sync),
		currentView:     messages.ViewConnections,
	}, nil
}

// WithContext sets the context service calls run under.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	a.connectionsView.SetContext(ctx)
	a.detailView.SetContext(ctx)
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	a.statusBar.SetState(status.StateLoading)
	return tea.Batch(
		tea.SetWindowTitle("fleetsync - "+a.organizationID),
		a.connectionsView.Init(),
	)
}

// Update implements tea.Model.
//
//nolint:gocyclo // central message handler
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case messages.ViewChanged:
		a.currentView = msg.View
		if msg.View == messages.ViewConnections {
			a.statusBar.SetState(status.StateLoading)
			a.statusBar.SetMessage("")
			return a, a.connectionsView.Init()
		}
		return a, nil

	case messages.ConnectionsLoaded:
		a.connectionsView, cmd = a.connectionsView.Update(msg)
		if msg.Err != nil {
			a.err = msg.Err
			a.statusBar.SetState(status.StateError)
			a.statusBar.SetMessage(msg.Err.Error())
		} else {
			a.err = nil
			a.statusBar.SetState(status.StateReady)
			a.statusBar.SetMessage("")
			a.statusBar.SetCount(len(msg.Connections))
		}
		return a, cmd

	case messages.ConnectionSelected:
		a.currentView = messages.ViewConnectionDetail
		a.statusBar.SetState(status.StateDetail)
		a.statusBar.SetMessage("")
		return a, a.detailView.SetConnection(msg.Connection)

	case messages.DetailLoaded, messages.Tick, messages.SyncFinished, messages.ConnectionChanged:
		a.detailView, cmd = a.detailView.Update(msg)
		a.syncDetailStatus()
		return a, cmd

	case messages.ErrorOccurred:
		a.err = msg.Err
		a.statusBar.SetState(status.StateError)
		a.statusBar.SetMessage(msg.Err.Error())
		return a, nil

	case messages.Quit:
		return a, tea.Quit
	}

	return a, nil
}

func (a *App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	key := msg.String()

	if key == "ctrl+c" || (key == "q" && a.currentView != messages.ViewHelp) {
		return a, tea.Quit
	}

	if a.currentView == messages.ViewHelp {
		if keymap.Matches(key, a.keymap.Back) || keymap.Matches(key, a.keymap.Help) || key == "q" {
			a.currentView = a.previousView
			a.syncDetailStatus()
		}
		return a, nil
	}

	if keymap.Matches(key, a.keymap.Help) {
		a.previousView = a.currentView
		a.currentView = messages.ViewHelp
		a.statusBar.SetState(status.StateHelp)
		return a, nil
	}

	switch a.currentView {
	case messages.ViewConnections:
		a.connectionsView, cmd = a.connectionsView.Update(msg)
	case messages.ViewConnectionDetail:
		a.detailView, cmd = a.detailView.Update(msg)
		a.syncDetailStatus()
	case messages.ViewHelp:
	}
	return a, cmd
}

// syncDetailStatus mirrors the detail view's state onto the status bar.
func (a *App) syncDetailStatus() {
	switch a.currentView {
	case messages.ViewConnections:
		if a.err != nil {
			a.statusBar.SetState(status.StateError)
		} else {
			a.statusBar.SetState(status.StateReady)
		}
		return
	case messages.ViewHelp:
		return
	case messages.ViewConnectionDetail:
	}

	switch {
	case a.detailView.Syncing():
		a.statusBar.SetState(status.StateSyncing)
		a.statusBar.SetMessage(a.detailView.Connection().Name)
	case a.detailView.Err() != nil:
		a.statusBar.SetState(status.StateError)
		a.statusBar.SetMessage(a.detailView.Err().Error())
	default:
		a.statusBar.SetState(status.StateDetail)
		a.statusBar.SetMessage(a.detailView.Notice())
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}

	var body string
	switch a.currentView {
	case messages.ViewConnectionDetail:
		body = a.detailView.View()
	case messages.ViewHelp:
		body = a.viewHelp()
	default:
		body = a.connectionsView.View()
	}
	return body + "\n\n" + a.statusBar.View()
}

func (a *App) viewHelp() string {
	var b strings.Builder
	b.WriteString(a.styles.Title.Render("Help"))
	b.WriteString("\n\n")
	for _, group := range a.keymap.FullHelp() {
		for _, binding := range group {
			h := binding.Help()
			b.WriteString(fmt.Sprintf("  %-10s %s\n", h.Key, h.Desc))
		}
		b.WriteString("\n")
	}
	b.WriteString(a.styles.Help.Render("[esc] back"))
	return b.String()
}

// Run starts the dashboard and blocks until it exits.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(a.ctx))
	_, err := p.Run()
	return err
}

// CurrentView returns the current view type.
func (a *App) CurrentView() messages.ViewType {
	return a.currentView
}

// Err returns the last error that occurred.
func (a *App) Err() error {
	return a.err
}

// Ready returns whether the app has received its window size.
func (a *App) Ready() bool {
	return a.ready
}

// StatusBar returns the status bar component.
func (a *App) StatusBar() *status.Bar {
	return a.statusBar
}

// SetDimensions sets the terminal dimensions.
func (a *App) SetDimensions(width, height int) {
	a.width = width
	a.height = height
	a.ready = true
	a.statusBar.SetWidth(width)
	a.connectionsView.SetDimensions(width, height)
	a.detailView.SetDimensions(width, height)
}
