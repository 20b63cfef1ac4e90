// Package mcp provides an MCP (Model Context Protocol) server adapter for fleetsync.
// It lets AI assistants query the tenant data lake through the entity readers.
package mcp

import "errors"

// ErrMissingEntityReader is returned when the entity reader is not provided.
var ErrMissingEntityReader = errors.New("mcp: entity reader is required")

// ErrMissingConnectionService is returned by connection tools when no
// connection service was wired.
var ErrMissingConnectionService = errors.New("mcp: connection service is not configured")
