// Package connectors holds the connector factory and the HTTP transport
// shared by provider connectors. Each provider lives in its own
// subpackage (demotms, fleetcard) and is registered with the Factory at
// startup through the builtin package.
package connectors
