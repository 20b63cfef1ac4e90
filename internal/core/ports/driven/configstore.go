package driven

import "time"

// ConfigStore is the persisted settings document. Keys use dot notation
// ("scheduler.tick_interval"); typed getters return the zero value when a
// key is missing or holds another type.
type ConfigStore interface {
	// Get returns the raw value and whether the key is set.
	Get(key string) (any, bool)

	GetString(key string) string
	GetInt(key string) int

	// GetFloat also accepts integer values.
	GetFloat(key string) float64
	GetBool(key string) bool

	// GetDuration accepts Go duration strings such as "15m".
	GetDuration(key string) (time.Duration, bool)
	GetStringSlice(key string) []string

	// Set stores a value and persists the document.
	Set(key string, value any) error

	// Save writes the document to its backing storage.
	Save() error

	// Load re-reads the document, replacing values held in memory.
	Load() error

	// Path identifies the backing storage.
	Path() string
}
