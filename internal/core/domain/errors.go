package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider or entity type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrSyncInProgress indicates a sync is already running for the
	// (connection, entity type) pair. Callers skip, never queue.
	ErrSyncInProgress = errors.New("sync in progress")

	// Tenancy Errors.

	// ErrTenantScopeRequired indicates a read was attempted without an organization.
	ErrTenantScopeRequired = errors.New("organization scope required")

	// ErrConnectionRequired indicates a lookup needs a connection in scope.
	ErrConnectionRequired = errors.New("connection scope required")

	// Connection Errors.

	// ErrConnectionInactive indicates the connection has been deactivated.
	ErrConnectionInactive = errors.New("connection inactive")

	// ErrConnectionSuspended indicates the connection is in the error state
	// and must be reset before it syncs again.
	ErrConnectionSuspended = errors.New("connection suspended")

	// ErrDuplicateConnection indicates the organization already has an active
	// connection for the provider and the new one is not multi-homed.
	ErrDuplicateConnection = errors.New("active connection already exists for provider")

	// Provider Errors. Connectors wrap these so callers can classify failures.

	// ErrAuthExpired indicates the provider session expired. Re-authenticate once and retry.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a network failure or 5xx response.
	ErrTransient = errors.New("transient provider error")

	// ErrFatal indicates rejected credentials or a permanently invalid request.
	ErrFatal = errors.New("fatal provider error")

	// ErrMapping indicates a raw item could not be mapped to a canonical entity.
	ErrMapping = errors.New("mapping error")

	// ErrWriteConflict indicates a compare-and-set mismatch in the data lake.
	ErrWriteConflict = errors.New("write conflict")

	// ErrWriteBackUnsupported indicates the provider does not accept updates.
	ErrWriteBackUnsupported = errors.New("write-back not supported")

	// Event Errors.

	// ErrUnsupportedEvent indicates no translator exists for the event name.
	ErrUnsupportedEvent = errors.New("unsupported event")

	// ErrNoWriteBackConnection indicates the organization has no active
	// connection that accepts write-back.
	ErrNoWriteBackConnection = errors.New("no write-back connection")
)

// RateLimitError carries the provider's requested backoff.
type RateLimitError struct {
	RetryAfter time.Duration
	Status     int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ErrorKind is the retry classification of an error.
type ErrorKind int

const (
	// KindUnknown errors are not retried.
	KindUnknown ErrorKind = iota
	KindAuthExpired
	KindRateLimited
	KindTransient
	KindFatal
	KindMapping
	KindWriteConflict
	KindCancelled
)

// String returns the kind name used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindMapping:
		return "mapping"
	case KindWriteConflict:
		return "write_conflict"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether the retry policy should attempt the call again.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindAuthExpired, KindRateLimited, KindTransient, KindWriteConflict:
		return true
	default:
		return false
	}
}

// Classify maps an error onto the taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, ErrAuthExpired):
		return KindAuthExpired
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrMapping):
		return KindMapping
	case errors.Is(err, ErrWriteConflict):
		return KindWriteConflict
	default:
		return KindUnknown
	}
}

// RetryAfter extracts the provider-requested delay, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}
