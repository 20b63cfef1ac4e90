package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	KeyStoreDriver         = "store.driver"
	KeyStoreDSN            = "store.dsn"
	KeyStoreDataDir        = "store.data_dir"
	KeySchedulerEnabled    = "scheduler.enabled"
	KeySchedulerTick       = "scheduler.tick_interval"
	KeySchedulerMaxConc    = "scheduler.max_concurrency"
	KeySyncPageSize        = "sync.page_size"
	KeyRetryMaxAttempts    = "retry.max_attempts"
	KeyRetryBaseDelay      = "retry.base_delay"
	KeyRetryMaxDelay       = "retry.max_delay"
	KeyRetryMultiplier     = "retry.multiplier"
	KeyRetentionEnabled    = "retention.enabled"
	KeyRetentionStaleAfter = "retention.stale_after"
	KeyRetentionInterval   = "retention.interval"
	KeyRetentionKeepRuns   = "retention.keep_runs"
	KeyBridgeMaxAttempts   = "bridge.max_attempts"
	KeyBridgeRedrive       = "bridge.redrive_interval"
	KeyAMQPURL             = "amqp.url"
	KeyAMQPQueue           = "amqp.queue"
	KeyAMQPPrefetch        = "amqp.prefetch"
	KeyHTTPAddr            = "http.addr"
	KeyLogLevel            = "log.level"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings with defaults applied.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Store: domain.StoreSettings{
			Driver:  s.getDriver(d.Store.Driver),
			DSN:     s.configStore.GetString(KeyStoreDSN),
			DataDir: s.configStore.GetString(KeyStoreDataDir),
		},
		Scheduler: domain.SchedulerConfig{
			Enabled:        s.getBool(KeySchedulerEnabled, d.Scheduler.Enabled),
			TickInterval:   s.getDuration(KeySchedulerTick, d.Scheduler.TickInterval),
			MaxConcurrency: s.getInt(KeySchedulerMaxConc, d.Scheduler.MaxConcurrency),
		},
		Sync: domain.SyncSettings{
			PageSize: s.getInt(KeySyncPageSize, d.Sync.PageSize),
		},
		Retry: domain.RetrySettings{
			MaxAttempts: s.getInt(KeyRetryMaxAttempts, d.Retry.MaxAttempts),
			BaseDelay:   s.getDuration(KeyRetryBaseDelay, d.Retry.BaseDelay),
			MaxDelay:    s.getDuration(KeyRetryMaxDelay, d.Retry.MaxDelay),
			Multiplier:  s.getFloat(KeyRetryMultiplier, d.Retry.Multiplier),
		},
		Retention: domain.RetentionSettings{
			Enabled:    s.getBool(KeyRetentionEnabled, d.Retention.Enabled),
			StaleAfter: s.getDuration(KeyRetentionStaleAfter, d.Retention.StaleAfter),
			Interval:   s.getDuration(KeyRetentionInterval, d.Retention.Interval),
			KeepRuns:   s.getInt(KeyRetentionKeepRuns, d.Retention.KeepRuns),
		},
		Bridge: domain.BridgeSettings{
			MaxAttempts:     s.getInt(KeyBridgeMaxAttempts, d.Bridge.MaxAttempts),
			RedriveInterval: s.getDuration(KeyBridgeRedrive, d.Bridge.RedriveInterval),
		},
		AMQP: domain.AMQPSettings{
			URL:      s.configStore.GetString(KeyAMQPURL),
			Queue:    s.getString(KeyAMQPQueue, d.AMQP.Queue),
			Prefetch: s.getInt(KeyAMQPPrefetch, d.AMQP.Prefetch),
		},
		HTTP: domain.HTTPSettings{
			Addr: s.getString(KeyHTTPAddr, d.HTTP.Addr),
		},
		LogLevel: s.getString(KeyLogLevel, d.LogLevel),
	}

	return settings, nil
}

// Set stores one setting after checking it parses.
func (s *SettingsService) Set(key string, value any) error {
	if err := validateKey(key, value); err != nil {
		return err
	}
	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Validate checks settings are internally consistent.
func (s *SettingsService) Validate(settings *domain.AppSettings) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidInput}, args...)...))
		}
	}

	check(settings.Store.Driver.IsValid(), "store.driver %q", settings.Store.Driver)
	check(settings.Store.Driver != domain.StorePostgres || settings.Store.DSN != "",
		"store.dsn is required for postgres")
	check(settings.Scheduler.TickInterval > 0, "scheduler.tick_interval must be positive")
	check(settings.Scheduler.MaxConcurrency > 0, "scheduler.max_concurrency must be positive")
	check(settings.Sync.PageSize > 0, "sync.page_size must be positive")
	check(settings.Retry.MaxAttempts > 0, "retry.max_attempts must be positive")
	check(settings.Retry.BaseDelay >= 0, "retry.base_delay must not be negative")
	check(settings.Retry.MaxDelay >= settings.Retry.BaseDelay, "retry.max_delay must be at least retry.base_delay")
	check(settings.Retry.Multiplier >= 1, "retry.multiplier must be at least 1")
	check(!settings.Retention.Enabled || settings.Retention.StaleAfter > 0,
		"retention.stale_after must be positive")
	check(!settings.Retention.Enabled || settings.Retention.Interval > 0,
		"retention.interval must be positive")
	check(settings.Retention.KeepRuns >= 0, "retention.keep_runs must not be negative")
	check(settings.Bridge.MaxAttempts > 0, "bridge.max_attempts must be positive")
	check(settings.Bridge.RedriveInterval >= 0, "bridge.redrive_interval must not be negative")
	check(isLogLevel(settings.LogLevel), "log.level %q", settings.LogLevel)

	return errors.Join(errs...)
}

// validateKey rejects values that Get could not use.
func validateKey(key string, value any) error {
	str := fmt.Sprint(value)
	switch key {
	case KeyStoreDriver:
		if !domain.StoreDriver(str).IsValid() {
			return fmt.Errorf("%w: store driver %q", domain.ErrInvalidInput, str)
		}
	case KeySchedulerTick, KeyRetryBaseDelay, KeyRetryMaxDelay, KeyRetentionStaleAfter,
		KeyRetentionInterval, KeyBridgeRedrive:
		if _, err := time.ParseDuration(str); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err)
		}
	case KeyLogLevel:
		if !isLogLevel(str) {
			return fmt.Errorf("%w: log level %q", domain.ErrInvalidInput, str)
		}
	}
	return nil
}

func isLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val := s.configStore.GetFloat(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	if d, ok := s.configStore.GetDuration(key); ok {
		return d
	}
	return defaultVal
}

func (s *SettingsService) getDriver(defaultVal domain.StoreDriver) domain.StoreDriver {
	val := s.configStore.GetString(KeyStoreDriver)
	if val == "" {
		return defaultVal
	}
	driver := domain.StoreDriver(val)
	if !driver.IsValid() {
		return defaultVal
	}
	return driver
}
