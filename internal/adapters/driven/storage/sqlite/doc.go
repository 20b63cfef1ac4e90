// Package sqlite provides a unified SQL implementation of the fleetsync driven ports.
//
// The default backend uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. NewPostgresStore opens the same schema on PostgreSQL through
// github.com/lib/pq. One Store implements several store interfaces through a single
// database handle:
//
//   - ConnectionStore: tenant connections and credentials
//   - SyncStateStore: cursors and per-cadence watermarks
//   - EntityStore: the canonical data lake with compare-and-set updates
//   - RunLogStore: sync run history
//   - EventLedger: outbound event deliveries keyed by idempotency key
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Applied versions are recorded in schema_migrations.
// Timestamps are stored as unix nanoseconds and booleans as integers so the
// same SQL runs on both databases.
//
// # Data Location
//
// By default, the SQLite database is stored at ~/.fleetsync/data/fleetsync.db
//
// # Thread Safety
//
// All operations are thread-safe. Conditional updates rely on row-level
// predicates, so concurrent writers see ErrWriteConflict rather than lost updates.
package sqlite
