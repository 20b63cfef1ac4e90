package domain

import (
	"fmt"
	"time"
)

// Cadence is one of the three sync schedules.
type Cadence string

const (
	// CadenceIncremental pulls records changed since the last incremental pass.
	CadenceIncremental Cadence = "incremental"
	// CadencePeriodic reconciles records changed since the last full pass.
	CadencePeriodic Cadence = "periodic"
	// CadenceFull re-walks the entire dataset.
	CadenceFull Cadence = "full"
)

// AllCadences returns the cadences in scheduling order.
func AllCadences() []Cadence {
	return []Cadence{CadenceIncremental, CadencePeriodic, CadenceFull}
}

// IsValid returns true if the cadence is recognised.
func (c Cadence) IsValid() bool {
	switch c {
	case CadenceIncremental, CadencePeriodic, CadenceFull:
		return true
	default:
		return false
	}
}

// ParseCadence converts user input into a Cadence.
func ParseCadence(s string) (Cadence, error) {
	c := Cadence(s)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: cadence %q", ErrInvalidInput, s)
	}
	return c, nil
}

// SyncState is the durable resume point for one (connection, entity type).
// Zero times mean "never".
type SyncState struct {
	OrganizationID string
	ConnectionID   string
	EntityType     EntityType

	// LastCursor is the cursor of the next page of an unfinished walk.
	// Empty means no walk is pending.
	LastCursor string

	// CursorCadence is the cadence of the pending walk.
	CursorCadence Cadence

	// CursorSince is the updated-since filter of the pending walk. Zero for full walks.
	CursorSince time.Time

	// WalkStartedAt is when the pending walk fetched its first page.
	WalkStartedAt time.Time

	// LastIncrementalAt is the watermark of the last completed incremental pass.
	LastIncrementalAt time.Time

	// LastPeriodicAt is the watermark of the last completed periodic pass.
	LastPeriodicAt time.Time

	// LastFullSyncAt is when the last full walk completed.
	LastFullSyncAt time.Time

	// LastFullSyncStartedAt is when the last completed full walk began.
	LastFullSyncStartedAt time.Time

	// LastError is the error of the most recent failed run.
	LastError string

	// UpdatedAt is when the state was last persisted.
	UpdatedAt time.Time
}

// HasPendingWalk reports whether an earlier walk stopped part way.
func (s *SyncState) HasPendingWalk() bool {
	return s.LastCursor != ""
}

// LastSuccess returns the completion watermark for a cadence.
func (s *SyncState) LastSuccess(c Cadence) time.Time {
	switch c {
	case CadenceIncremental:
		return s.LastIncrementalAt
	case CadencePeriodic:
		return s.LastPeriodicAt
	case CadenceFull:
		return s.LastFullSyncAt
	default:
		return time.Time{}
	}
}

// ClearWalk forgets the pending walk.
func (s *SyncState) ClearWalk() {
	s.LastCursor = ""
	s.CursorCadence = ""
	s.CursorSince = time.Time{}
	s.WalkStartedAt = time.Time{}
}

// CompleteWalk records a finished walk of the given cadence.
// A walk with a zero since filter covered the whole dataset and also counts as a full pass.
func (s *SyncState) CompleteWalk(c Cadence, since, startedAt, finishedAt time.Time) {
	full := since.IsZero()
	if full {
		s.LastFullSyncAt = finishedAt
		s.LastFullSyncStartedAt = startedAt
	}
	if full || c == CadencePeriodic {
		s.LastPeriodicAt = laterOf(s.LastPeriodicAt, startedAt)
	}
	s.LastIncrementalAt = laterOf(s.LastIncrementalAt, startedAt)
	s.LastError = ""
	s.ClearWalk()
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// RunStatus is the outcome of a sync run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// SyncRun is the append-only log entry of one run.
type SyncRun struct {
	ID             string
	OrganizationID string
	ConnectionID   string
	EntityType     EntityType

	// Cadence is the cadence of the walk that ran. A resumed walk keeps its original cadence.
	Cadence Cadence

	// Resumed is true when the run continued an earlier walk.
	Resumed bool

	// FullWalk is true when the walk had no since filter.
	FullWalk bool

	Status     RunStatus
	StartedAt  time.Time
	FinishedAt time.Time

	PagesProcessed    int
	EntitiesUpserted  int
	EntitiesUnchanged int
	EntitiesFailed    int

	// Errors holds per-entity and run-level error messages.
	Errors []string
}

// Duration returns how long the run took.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunRequest asks the orchestrator to sync one (connection, entity type).
type RunRequest struct {
	ConnectionID string
	EntityType   EntityType
	Cadence      Cadence
}
