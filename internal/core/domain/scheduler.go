package domain

import (
	"fmt"
	"time"
)

// SyncTask is the unit the scheduler dispatches.
type SyncTask struct {
	OrganizationID string
	ConnectionID   string
	EntityType     EntityType
	Cadence        Cadence
}

// Key identifies the (connection, entity type) lock the task contends on.
func (t SyncTask) Key() string {
	return LockKey(t.ConnectionID, t.EntityType)
}

// String returns a log-friendly description.
func (t SyncTask) String() string {
	return fmt.Sprintf("%s/%s/%s", t.ConnectionID, t.EntityType, t.Cadence)
}

// LockKey builds the per-(connection, entity type) key used for run exclusivity.
func LockKey(connectionID string, entityType EntityType) string {
	return connectionID + "/" + string(entityType)
}

// IsDue reports whether a cadence should run at now.
// The reference point is the later of the last success and the last attempt,
// so a failing task is not retried every tick. A zero interval never runs.
func IsDue(now time.Time, interval time.Duration, lastSuccess, lastAttempt time.Time) bool {
	if interval <= 0 {
		return false
	}
	ref := lastSuccess
	if lastAttempt.After(ref) {
		ref = lastAttempt
	}
	if ref.IsZero() {
		return true
	}
	return !now.Before(ref.Add(interval))
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	// TickInterval is how often due work is checked.
	TickInterval time.Duration

	// MaxConcurrency bounds the number of runs in flight across all connections.
	MaxConcurrency int
}

// DefaultSchedulerConfig returns sensible defaults for the scheduler.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:        true,
		TickInterval:   5 * time.Second,
		MaxConcurrency: 8,
	}
}
