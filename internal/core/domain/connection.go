package domain

import "time"

// ConnectionStatus is the externally visible health of a connection.
type ConnectionStatus string

const (
	// ConnectionDisconnected is the initial state before the first authentication.
	ConnectionDisconnected ConnectionStatus = "disconnected"
	// ConnectionConnecting is set while a run authenticates.
	ConnectionConnecting ConnectionStatus = "connecting"
	// ConnectionConnected means the last authentication succeeded.
	ConnectionConnected ConnectionStatus = "connected"
	// ConnectionError means a fatal error suspended syncing until reset.
	ConnectionError ConnectionStatus = "error"
)

// IsValid returns true if the status is recognised.
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case ConnectionDisconnected, ConnectionConnecting, ConnectionConnected, ConnectionError:
		return true
	default:
		return false
	}
}

// SyncConfig holds the per-connection cadence intervals.
// A zero interval disables that cadence.
type SyncConfig struct {
	// IncrementalInterval is how often changed records are pulled.
	IncrementalInterval time.Duration

	// PeriodicInterval is how often a reconciliation walk since the last full pass runs.
	PeriodicInterval time.Duration

	// FullSyncInterval is how often the entire dataset is re-walked.
	FullSyncInterval time.Duration

	// EntityTypes restricts syncing to a subset of the provider's types.
	// Empty means every type the provider supports.
	EntityTypes []EntityType

	// PageSize overrides the global page size. Zero uses the default.
	PageSize int
}

// Interval returns the configured interval for a cadence.
func (c SyncConfig) Interval(cadence Cadence) time.Duration {
	switch cadence {
	case CadenceIncremental:
		return c.IncrementalInterval
	case CadencePeriodic:
		return c.PeriodicInterval
	case CadenceFull:
		return c.FullSyncInterval
	default:
		return 0
	}
}

// DefaultSyncConfig returns the intervals used when a connection omits them.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		IncrementalInterval: 15 * time.Minute,
		PeriodicInterval:    6 * time.Hour,
		FullSyncInterval:    24 * time.Hour,
	}
}

// Connection is one tenant's configured link to one external provider.
type Connection struct {
	// ID is the unique identifier for the connection.
	ID string

	// OrganizationID is the owning tenant.
	OrganizationID string

	// ProviderType selects the connector (e.g. "demotms", "fleetcard").
	ProviderType string

	// Name is a human-readable label.
	Name string

	// Credentials is the provider-specific credential bag.
	Credentials map[string]string

	// SyncConfig holds cadence intervals.
	SyncConfig SyncConfig

	// MultiHomed allows several active connections for the same provider.
	MultiHomed bool

	// IsActive is false once deactivated. Connections are never hard-deleted.
	IsActive bool

	// Status is the health visible to operators.
	Status ConnectionStatus

	// LastSyncAt is when a run last completed successfully.
	LastSyncAt time.Time

	// LastError is the most recent fatal or run-level error.
	LastError string

	// CreatedAt is when the connection was registered.
	CreatedAt time.Time

	// UpdatedAt is when the connection was last modified.
	UpdatedAt time.Time
}

// CheckSyncable returns nil when runs may proceed for this connection.
func (c *Connection) CheckSyncable() error {
	if !c.IsActive {
		return ErrConnectionInactive
	}
	if c.Status == ConnectionError {
		return ErrConnectionSuspended
	}
	return nil
}

// WantsEntityType reports whether the connection syncs the entity type.
func (c *Connection) WantsEntityType(t EntityType) bool {
	if len(c.SyncConfig.EntityTypes) == 0 {
		return true
	}
	for _, et := range c.SyncConfig.EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}

// ConnectionFilter narrows connection listings.
type ConnectionFilter struct {
	// OrganizationID limits results to one tenant. Empty means all tenants,
	// which only the scheduler and operators use.
	OrganizationID string

	// ProviderType limits results to one provider.
	ProviderType string

	// ActiveOnly excludes deactivated connections.
	ActiveOnly bool
}

// ConnectionSyncUpdate changes the sync bookkeeping of a connection. It never
// touches configuration, credentials or activation, so it cannot undo a
// concurrent Update, Reset or Deactivate.
type ConnectionSyncUpdate struct {
	// Status is applied when set and the current status is one of
	// FromStatuses. An empty FromStatuses matches any status.
	Status       ConnectionStatus
	FromStatuses []ConnectionStatus

	// LastError is applied together with Status, or alone when Status is
	// empty. Nil leaves it unchanged.
	LastError *string

	// LastSyncAt is applied when non-zero.
	LastSyncAt time.Time
	UpdatedAt  time.Time
}

// StatusApplies reports whether the status change applies to current.
func (u ConnectionSyncUpdate) StatusApplies(current ConnectionStatus) bool {
	if u.Status == "" {
		return false
	}
	if len(u.FromStatuses) == 0 {
		return true
	}
	for _, s := range u.FromStatuses {
		if s == current {
			return true
		}
	}
	return false
}

// Apply updates c in place.
func (u ConnectionSyncUpdate) Apply(c *Connection) {
	if !u.LastSyncAt.IsZero() {
		c.LastSyncAt = u.LastSyncAt
	}
	if !u.UpdatedAt.IsZero() {
		c.UpdatedAt = u.UpdatedAt
	}
	switch {
	case u.Status == "":
		if u.LastError != nil {
			c.LastError = *u.LastError
		}
	case u.StatusApplies(c.Status):
		c.Status = u.Status
		if u.LastError != nil {
			c.LastError = *u.LastError
		}
	}
}

// ConnectionHealth is the status surface for operators.
type ConnectionHealth struct {
	ConnectionID   string
	OrganizationID string
	ProviderType   string
	IsActive       bool
	Status         ConnectionStatus
	LastSyncAt     time.Time
	LastError      string
	EntityStates   []SyncState
}

// ProviderDescriptor describes a provider the connector factory can build.
type ProviderDescriptor struct {
	// ID is the provider type key (e.g. "demotms").
	ID string
	// Name is the human-readable display name.
	Name string
	// Description provides a brief explanation of the provider.
	Description string
	// CredentialKeys lists the credential fields this provider expects.
	CredentialKeys []CredentialKey
	// EntityTypes lists the entity types the provider exposes.
	EntityTypes []EntityType
	// SupportsWriteBack reports whether events can be pushed to the provider.
	SupportsWriteBack bool
}

// CredentialKey describes a credential field for a provider.
type CredentialKey struct {
	// Key is the credential key name.
	Key string
	// Label is the human-readable label for prompts.
	Label string
	// Default is the value used when the field is left empty.
	Default string
	// Required indicates whether this field must be provided.
	Required bool
	// Secret indicates whether input should be masked.
	Secret bool
}

// MissingCredentials returns the required keys absent from creds.
func (p *ProviderDescriptor) MissingCredentials(creds map[string]string) []string {
	var missing []string
	for _, k := range p.CredentialKeys {
		if k.Required && creds[k.Key] == "" && k.Default == "" {
			missing = append(missing, k.Key)
		}
	}
	return missing
}
