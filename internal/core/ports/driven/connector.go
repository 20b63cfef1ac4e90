package driven

import (
	"context"
	"encoding/json"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// Connector talks to one external provider for one connection.
// Each provider type (demotms, fleetcard, ...) implements this interface.
//
// Errors wrap the domain taxonomy: ErrAuthExpired, *RateLimitError,
// ErrTransient, ErrFatal. MapToCanonical failures wrap ErrMapping.
type Connector interface {
	// Type returns the provider type identifier.
	Type() string

	// ConnectionID returns the configured connection ID.
	ConnectionID() string

	// Capabilities returns what this connector supports.
	Capabilities() ConnectorCapabilities

	// Authenticate establishes a provider session from the credential bag.
	Authenticate(ctx context.Context, credentials map[string]string) (*Session, error)

	// FetchPage fetches one page. Retrying with a previously returned cursor
	// yields the same items or a superset.
	FetchPage(ctx context.Context, session *Session, req FetchRequest) (*Page, error)

	// MapToCanonical converts a raw item into a canonical entity with typed
	// fields, natural key and source timestamp filled in.
	MapToCanonical(entityType domain.EntityType, item RawItem) (*domain.CanonicalEntity, error)

	// PushUpdate applies a delta in the provider.
	// Returns ErrWriteBackUnsupported if SupportsWriteBack is false.
	PushUpdate(ctx context.Context, session *Session, delta domain.EntityDelta) (*domain.PushAck, error)

	// Close releases resources.
	Close() error
}

// ConnectorCapabilities describes what a connector supports.
type ConnectorCapabilities struct {
	// EntityTypes lists the canonical types the provider exposes.
	EntityTypes []domain.EntityType

	// SupportsDeltaFilter indicates FetchPage honours UpdatedSince.
	// Without it the orchestrator walks every page and filters client-side.
	SupportsDeltaFilter bool

	// SupportsWriteBack indicates PushUpdate is implemented.
	SupportsWriteBack bool

	// MaxPageSize caps the requested page size. Zero means no cap.
	MaxPageSize int
}

// Supports reports whether the connector exposes the entity type.
func (c ConnectorCapabilities) Supports(t domain.EntityType) bool {
	for _, et := range c.EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Session is an authenticated provider session.
type Session struct {
	// Token is the bearer token sent with requests.
	Token string

	// ExpiresAt is when the token stops being valid. Zero if unknown.
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

// FetchRequest selects one page.
type FetchRequest struct {
	EntityType domain.EntityType

	// Cursor is the NextCursor of the previous page, or "" for the first page.
	Cursor string

	PageSize int

	// UpdatedSince filters to items modified at or after this time. Zero means all.
	UpdatedSince time.Time
}

// Page is one page of provider items.
type Page struct {
	Items []RawItem

	// NextCursor is "" when there are no more pages.
	NextCursor string

	// TotalCount is the provider's total, or -1 if unknown.
	TotalCount int
}

// RawItem is a provider item as received.
type RawItem = json.RawMessage
