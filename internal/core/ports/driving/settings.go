package driving

import "github.com/custodia-labs/fleetsync/internal/core/domain"

// SettingsService exposes typed application settings.
type SettingsService interface {
	// Get returns current settings with defaults applied.
	Get() (*domain.AppSettings, error)

	// Set stores one raw setting by dot-notation key.
	Set(key string, value any) error

	// Validate checks settings are internally consistent.
	Validate(settings *domain.AppSettings) error
}
