package mcp

import (
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Reader answers tenant-scoped entity queries.
	Reader driving.EntityReader

	// Connections exposes connection health and the provider catalogue.
	Connections driving.ConnectionService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Reader == nil {
		return ErrMissingEntityReader
	}
	// Connections is optional; connection tools report it missing.
	return nil
}
