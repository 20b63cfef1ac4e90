// Package domain defines the core business entities for fleetsync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Connection: A tenant's configured link to an external fleet platform
//   - CanonicalEntity: A normalised record in the tenant data lake
//   - SyncState: Durable per-(connection, entity type) resume point
//   - SyncRun: Append-only log of a single sync run
//   - DomainEvent / EventDelivery: Outbound write-back and its ledger entry
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
