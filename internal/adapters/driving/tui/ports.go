// Package tui provides the interactive connection dashboard for fleetsync.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// Ports aggregates the driving ports the dashboard uses.
type Ports struct {
	// Connections lists connections and their health.
	Connections driving.ConnectionService

	// Sync triggers runs and reports progress and history.
	Sync driving.SyncOrchestrator
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.Connections == nil {
		return ErrMissingConnectionService
	}
	if p.Sync == nil {
		return ErrMissingSyncOrchestrator
	}
	return nil
}
