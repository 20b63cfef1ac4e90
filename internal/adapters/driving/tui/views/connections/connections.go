// Package connections provides the connection list view for the dashboard.
package connections

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

// View lists an organization's connections.
type View struct {
	ctx               context.Context
	styles            *styles.Styles
	connectionService driving.ConnectionService
	organizationID    string

	connections []domain.Connection
	selected    int
	width       int
	height      int
	loading     bool
	err         error
}

// NewView creates a new connections view.
func NewView(s *styles.Styles, connectionService driving.ConnectionService, organizationID string) *View {
	return &View{
		ctx:               context.Background(),
		styles:            s,
		connectionService: connectionService,
		organizationID:    organizationID,
	}
}

// SetContext sets the context service calls run under.
func (v *View) SetContext(ctx context.Context) {
	v.ctx = ctx
}

// Init loads the connection list.
func (v *View) Init() tea.Cmd {
	v.loading = true
	return v.loadConnections()
}

func (v *View) loadConnections() tea.Cmd {
	ctx := v.ctx
	return func() tea.Msg {
		if v.connectionService == nil {
			return messages.ConnectionsLoaded{Err: errors.New("connection service not available")}
		}
		conns, err := v.connectionService.List(ctx, v.organizationID)
		return messages.ConnectionsLoaded{Connections: conns, Err: err}
	}
}

// Update handles messages for the connections view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.ConnectionsLoaded:
		v.loading = false
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.err = nil
		v.connections = msg.Connections
		if v.selected >= len(v.connections) {
			v.selected = max(len(v.connections)-1, 0)
		}
		return v, nil
	}

	return v, nil
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if v.selected > 0 {
			v.selected--
		}
	case "down", "j":
		if v.selected < len(v.connections)-1 {
			v.selected++
		}
	case "enter":
		if v.selected < len(v.connections) {
			conn := v.connections[v.selected]
			return v, func() tea.Msg {
				return messages.ConnectionSelected{Connection: conn}
			}
		}
	case "r":
		v.loading = true
		return v, v.loadConnections()
	}
	return v, nil
}

// View renders the connections view.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("Connections"))
	b.WriteString(v.styles.Muted.Render("  " + v.organizationID))
	b.WriteString("\n\n")

	switch {
	case v.loading:
		b.WriteString(v.styles.Muted.Render("Loading connections..."))
	case v.err != nil:
		b.WriteString(v.styles.Error.Render(fmt.Sprintf("Error: %s", v.err.Error())))
	case len(v.connections) == 0:
		b.WriteString(v.styles.Muted.Render("No connections registered."))
		b.WriteString("\n")
		b.WriteString(v.styles.Muted.Render("Register one with: fleetsync connection add --org " + v.organizationID))
	default:
		for i := range v.connections {
			b.WriteString(v.renderConnection(i, &v.connections[i]))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n\n")
	b.WriteString(v.renderHelp())
	return b.String()
}

func (v *View) renderConnection(index int, conn *domain.Connection) string {
	indicator := "  "
	if index == v.selected {
		indicator = "> "
	}

	name := conn.Name
	if name == "" {
		name = conn.ID
	}
	line := fmt.Sprintf("%s%-24s %-10s ", indicator, name, conn.ProviderType)

	status := v.styles.ConnectionStatus(conn.Status)
	if !conn.IsActive {
		status = v.styles.Muted.Render("inactive")
	}

	lastSync := "never"
	if !conn.LastSyncAt.IsZero() {
		lastSync = conn.LastSyncAt.Local().Format(time.DateTime)
	}

	if index == v.selected {
		line = v.styles.Selected.Render(line)
	} else {
		line = v.styles.Normal.Render(line)
	}
	return line + status + v.styles.Muted.Render("  last sync "+lastSync)
}

func (v *View) renderHelp() string {
	return v.styles.Help.Render("[↑/k] up  [↓/j] down  [enter] open  [r] refresh  [?] help  [q] quit")
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
}

// Connections returns the loaded connections.
func (v *View) Connections() []domain.Connection {
	return v.connections
}

// Selected returns the highlighted row.
func (v *View) Selected() int {
	return v.selected
}

// Loading reports whether a load is in flight.
func (v *View) Loading() bool {
	return v.loading
}

// Err returns the last load error.
func (v *View) Err() error {
	return v.err
}
