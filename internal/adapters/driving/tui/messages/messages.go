// Package messages defines Bubbletea message types for the dashboard.
package messages

import (
	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// ViewType identifies which view is currently active.
type ViewType int

const (
	// ViewConnections lists the organization's connections.
	ViewConnections ViewType = iota
	// ViewConnectionDetail shows health and runs of one connection.
	ViewConnectionDetail
	// ViewHelp is the keybindings view.
	ViewHelp
)

// String returns the string representation of the view type.
func (v ViewType) String() string {
	switch v {
	case ViewConnections:
		return "connections"
	case ViewConnectionDetail:
		return "connection_detail"
	case ViewHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ViewChanged is sent when navigating between views.
type ViewChanged struct {
	View ViewType
}

// ConnectionsLoaded carries the connection list.
type ConnectionsLoaded struct {
	Connections []domain.Connection
	Err         error
}

// ConnectionSelected is sent when a connection is opened.
type ConnectionSelected struct {
	Connection domain.Connection
}

// DetailLoaded carries everything the detail view shows.
type DetailLoaded struct {
	ConnectionID string
	Health       *domain.ConnectionHealth
	Active       []driving.SyncStatus
	Runs         []domain.SyncRun
	Err          error
}

// SyncFinished is sent when a sync triggered from the dashboard returns.
type SyncFinished struct {
	ConnectionID string
	Cadence      domain.Cadence
	Runs         []domain.SyncRun
	Err          error
}

// ConnectionChanged is sent after a reset or deactivation.
type ConnectionChanged struct {
	ConnectionID string
	Action       string
	Err          error
}

// Tick triggers a periodic refresh of the detail view.
type Tick struct {
	ConnectionID string
}

// ErrorOccurred is sent when an error needs to be displayed.
type ErrorOccurred struct {
	Err error
}

// Quit is sent to exit the application.
type Quit struct{}
