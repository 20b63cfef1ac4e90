// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Connector: Fetches pages from, and pushes updates to, an external provider
//   - ConnectorFactory: Creates connectors from connection configuration
//   - ConnectionStore: Connection persistence
//   - SyncStateStore: Per-(connection, entity type) resume points
//   - EntityStore: Canonical entity persistence (the data lake)
//   - RunLogStore: Append-only sync run log
//   - EventLedger: Idempotency ledger for bridged events
//   - ConfigStore: Application configuration
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
