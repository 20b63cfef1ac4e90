package domain

import "time"

// StoreDriver selects the persistence backend.
type StoreDriver string

// Available store drivers.
const (
	// StoreSQLite is the embedded pure-Go SQLite store.
	StoreSQLite StoreDriver = "sqlite"

	// StorePostgres uses a PostgreSQL server.
	StorePostgres StoreDriver = "postgres"

	// StoreMemory keeps everything in process memory. Nothing survives a restart.
	StoreMemory StoreDriver = "memory"
)

// IsValid returns true if the driver is recognised.
func (d StoreDriver) IsValid() bool {
	switch d {
	case StoreSQLite, StorePostgres, StoreMemory:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (d StoreDriver) String() string {
	return string(d)
}

// StoreSettings configures persistence.
type StoreSettings struct {
	Driver StoreDriver
	// DSN is the postgres connection string.
	DSN string
	// DataDir holds the sqlite database file.
	DataDir string
}

// SyncSettings configures page fetching.
type SyncSettings struct {
	// PageSize is the default page size requested from providers.
	PageSize int
}

// RetrySettings configures the shared backoff policy.
type RetrySettings struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// RetentionSettings configures stale-record cleanup.
type RetentionSettings struct {
	// Enabled turns the scheduled cleanup on.
	Enabled bool
	// StaleAfter is how long a record may go unseen before it is deleted.
	StaleAfter time.Duration
	// Interval is how often the cleanup runs.
	Interval time.Duration
	// KeepRuns is how many run log entries to keep per (connection, entity type).
	KeepRuns int
}

// BridgeSettings configures outbound event delivery.
type BridgeSettings struct {
	// MaxAttempts bounds PushUpdate calls per delivery.
	MaxAttempts int
	// RedriveInterval is how often dead letters are retried automatically. Zero disables it.
	RedriveInterval time.Duration
}

// AMQPSettings configures the RabbitMQ event consumer.
type AMQPSettings struct {
	URL      string
	Queue    string
	Prefetch int
}

// HTTPSettings configures the operations HTTP surface.
type HTTPSettings struct {
	Addr string
}

// AppSettings holds all application settings.
type AppSettings struct {
	Store     StoreSettings
	Scheduler SchedulerConfig
	Sync      SyncSettings
	Retry     RetrySettings
	Retention RetentionSettings
	Bridge    BridgeSettings
	AMQP      AMQPSettings
	HTTP      HTTPSettings

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// DefaultAppSettings returns settings with sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Store: StoreSettings{
			Driver: StoreSQLite,
		},
		Scheduler: DefaultSchedulerConfig(),
		Sync: SyncSettings{
			PageSize: 50,
		},
		Retry: RetrySettings{
			MaxAttempts: 5,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
			Multiplier:  2,
		},
		Retention: RetentionSettings{
			Enabled:    true,
			StaleAfter: 30 * 24 * time.Hour,
			Interval:   time.Hour,
			KeepRuns:   100,
		},
		Bridge: BridgeSettings{
			MaxAttempts:     5,
			RedriveInterval: 15 * time.Minute,
		},
		AMQP: AMQPSettings{
			Queue:    "fleetsync.events",
			Prefetch: 10,
		},
		HTTP: HTTPSettings{
			Addr: ":8080",
		},
		LogLevel: "info",
	}
}
