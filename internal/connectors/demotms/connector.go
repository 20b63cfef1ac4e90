package demotms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/connectors"
	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// ProviderType is the factory key of this provider.
const ProviderType = "demotms"

// Credential keys.
const (
	CredBaseURL           = "base_url"
	CredAPIKey            = "api_key"
	CredAPISecret         = "api_secret"
	CredRequestsPerSecond = "requests_per_second"
)

const (
	// DefaultBaseURL is the hosted demoTMS API.
	DefaultBaseURL = "https://api.demotms.com"

	// DefaultRequestsPerSecond is the client-side throttle.
	DefaultRequestsPerSecond = 5

	// MaxPageSize is the largest pageSize the API accepts.
	MaxPageSize = 200

	// defaultSessionTTL applies when the login response has no expiry.
	defaultSessionTTL = time.Hour
)

// Descriptor describes the provider for the factory and the CLI.
func Descriptor() domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		ID:          ProviderType,
		Name:        "demoTMS",
		Description: "Transportation management system: fleet, drivers, locations, invoices and carriers",
		CredentialKeys: []domain.CredentialKey{
			{Key: CredBaseURL, Label: "API base URL", Default: DefaultBaseURL},
			{Key: CredAPIKey, Label: "API key", Required: true},
			{Key: CredAPISecret, Label: "API secret", Required: true, Secret: true},
			{Key: CredRequestsPerSecond, Label: "Requests per second", Default: strconv.Itoa(DefaultRequestsPerSecond)},
		},
		EntityTypes:       EntityTypes(),
		SupportsWriteBack: true,
	}
}

// EntityTypes lists the canonical types demoTMS exposes.
func EntityTypes() []domain.EntityType {
	return []domain.EntityType{
		domain.EntityVehicles,
		domain.EntityTruckers,
		domain.EntityAddresses,
		domain.EntityInvoices,
		domain.EntityCarriers,
	}
}

// Options are process-level settings shared by every demoTMS connector.
type Options struct {
	HTTPClient *http.Client
	UserAgent  string
	Now        func() time.Time
}

// Builder returns a factory builder using opts.
func Builder(opts Options) driven.ConnectorBuilder {
	return func(conn domain.Connection) (driven.Connector, error) {
		return New(conn, opts)
	}
}

// Connector reads from and writes back to demoTMS.
type Connector struct {
	connectionID string
	client       *connectors.Client
	now          func() time.Time

	mu     sync.Mutex
	closed bool
}

// New creates a demoTMS connector for a connection.
func New(conn domain.Connection, opts Options) (*Connector, error) {
	rps := float64(DefaultRequestsPerSecond)
	if raw := connectors.Credential(conn.Credentials, CredRequestsPerSecond, ""); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: %s must be a non-negative number", domain.ErrInvalidInput, CredRequestsPerSecond)
		}
		rps = v
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	client, err := connectors.NewClient(connectors.ClientOptions{
		Provider:          ProviderType,
		BaseURL:           connectors.Credential(conn.Credentials, CredBaseURL, DefaultBaseURL),
		HTTPClient:        opts.HTTPClient,
		UserAgent:         opts.UserAgent,
		RequestsPerSecond: rps,
		Burst:             1,
		Now:               now,
	})
	if err != nil {
		return nil, err
	}

	return &Connector{
		connectionID: conn.ID,
		client:       client,
		now:          now,
	}, nil
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return ProviderType
}

// ConnectionID returns the connection identifier.
func (c *Connector) ConnectionID() string {
	return c.connectionID
}

// Capabilities returns the connector's capabilities.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		EntityTypes:         EntityTypes(),
		SupportsDeltaFilter: true,
		SupportsWriteBack:   true,
		MaxPageSize:         MaxPageSize,
	}
}

type loginRequest struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
	ExpiresAt string `json:"expiresAt"`
}

// Authenticate exchanges the API key pair for a bearer session.
// Rejected credentials are fatal; the caller must not retry them.
func (c *Connector) Authenticate(ctx context.Context, credentials map[string]string) (*driven.Session, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	key := connectors.Credential(credentials, CredAPIKey, "")
	secret := connectors.Credential(credentials, CredAPISecret, "")
	if key == "" || secret == "" {
		return nil, fmt.Errorf("%w: demotms: %s and %s are required", domain.ErrFatal, CredAPIKey, CredAPISecret)
	}

	var resp loginResponse
	err := c.client.Do(ctx, connectors.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   loginRequest{APIKey: key, APISecret: secret},
	}, &resp)
	if err != nil {
		if connectors.IsStatus(err, http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: demotms: credentials rejected: %w", domain.ErrFatal, err)
		}
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: demotms: login returned no token", domain.ErrFatal)
	}

	session := &driven.Session{Token: resp.Token}
	switch {
	case resp.ExpiresAt != "":
		at, err := connectors.ParseTimestamp(resp.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("%w: demotms: login expiry: %w", domain.ErrFatal, err)
		}
		session.ExpiresAt = at
	case resp.ExpiresIn > 0:
		session.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		session.ExpiresAt = c.now().Add(defaultSessionTTL)
	}

	logger.Debug("demotms session opened",
		zap.String("connection_id", c.connectionID),
		zap.Time("expires_at", session.ExpiresAt))
	return session, nil
}

// pageEnvelope is the list response of every demoTMS resource.
type pageEnvelope struct {
	Data     []driven.RawItem `json:"data"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Total    int              `json:"total"`
	HasMore  bool             `json:"hasMore"`
}

// FetchPage fetches one page. The cursor is the 1-based page number.
func (c *Connector) FetchPage(ctx context.Context, session *driven.Session, req driven.FetchRequest) (*driven.Page, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if session == nil || session.Token == "" {
		return nil, fmt.Errorf("%w: demotms: no session", domain.ErrAuthExpired)
	}

	resource, ok := resourceFor(req.EntityType)
	if !ok {
		return nil, fmt.Errorf("%w: demotms does not expose %s", domain.ErrUnsupportedType, req.EntityType)
	}

	page := 1
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: demotms: invalid cursor %q", domain.ErrFatal, req.Cursor)
		}
		page = n
	}
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query := url.Values{
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(pageSize)},
	}
	if !req.UpdatedSince.IsZero() {
		query.Set("updatedSince", connectors.FormatTime(req.UpdatedSince))
	}

	var env pageEnvelope
	if err := c.client.Do(ctx, connectors.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/" + resource,
		Query:  query,
		Token:  session.Token,
	}, &env); err != nil {
		return nil, err
	}

	out := &driven.Page{Items: env.Data, TotalCount: env.Total}
	if env.HasMore && len(env.Data) > 0 {
		out.NextCursor = strconv.Itoa(page + 1)
	}
	return out, nil
}

// MapToCanonical converts a demoTMS record to a canonical entity.
func (c *Connector) MapToCanonical(entityType domain.EntityType, item driven.RawItem) (*domain.CanonicalEntity, error) {
	mapper, ok := mappers[entityType]
	if !ok {
		return nil, connectors.MappingError(entityType, "demotms does not expose this type")
	}
	entity, err := mapper(item)
	if err != nil {
		return nil, err
	}
	entity.Type = entityType
	entity.ConnectionID = c.connectionID
	entity.RawPayload = append([]byte(nil), item...)
	return entity, nil
}

type carrierAssignment struct {
	CarrierID string `json:"carrierId"`
}

type statusUpdate struct {
	Status string `json:"status"`
}

type writeResponse struct {
	ID     connectors.FlexString `json:"id"`
	Status string                `json:"status"`
}

// PushUpdate applies a delta: carrier assignment on loads, status on invoices.
func (c *Connector) PushUpdate(ctx context.Context, session *driven.Session, delta domain.EntityDelta) (*domain.PushAck, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if session == nil || session.Token == "" {
		return nil, fmt.Errorf("%w: demotms: no session", domain.ErrAuthExpired)
	}

	req, err := writeRequest(delta)
	if err != nil {
		return nil, err
	}
	req.Token = session.Token

	var resp writeResponse
	if err := c.client.Do(ctx, req, &resp); err != nil {
		return nil, err
	}

	ack := &domain.PushAck{ExternalID: resp.ID.String(), Status: resp.Status}
	if ack.ExternalID == "" {
		ack.ExternalID = delta.NaturalKey
	}
	if ack.Status == "" {
		ack.Status = "accepted"
	}

	logger.Info("demotms update pushed",
		zap.String("connection_id", c.connectionID),
		zap.String("operation", string(delta.Operation)),
		zap.String("external_id", ack.ExternalID))
	return ack, nil
}

func writeRequest(delta domain.EntityDelta) (connectors.Request, error) {
	field := func(key string) string {
		if v, ok := delta.Fields[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}

	switch delta.Operation {
	case domain.DeltaAssignCarrier:
		orderID := field(domain.PayloadOrderID)
		if orderID == "" || delta.NaturalKey == "" {
			return connectors.Request{}, fmt.Errorf("%w: demotms: assignment needs order and carrier", domain.ErrFatal)
		}
		return connectors.Request{
			Method: http.MethodPut,
			Path:   "/api/v1/loads/" + url.PathEscape(orderID) + "/carrier",
			Body:   carrierAssignment{CarrierID: delta.NaturalKey},
		}, nil

	case domain.DeltaUnassignCarrier:
		orderID := field(domain.PayloadOrderID)
		if orderID == "" {
			return connectors.Request{}, fmt.Errorf("%w: demotms: unassignment needs an order", domain.ErrFatal)
		}
		return connectors.Request{
			Method: http.MethodDelete,
			Path:   "/api/v1/loads/" + url.PathEscape(orderID) + "/carrier",
		}, nil

	case domain.DeltaUpdateStatus:
		status := field(domain.PayloadStatus)
		if delta.EntityType != domain.EntityInvoices || delta.NaturalKey == "" || status == "" {
			return connectors.Request{}, fmt.Errorf("%w: demotms: status updates need an invoice and a status", domain.ErrFatal)
		}
		return connectors.Request{
			Method: http.MethodPatch,
			Path:   "/api/v1/invoices/" + url.PathEscape(delta.NaturalKey),
			Body:   statusUpdate{Status: providerInvoiceStatus(status)},
		}, nil

	default:
		return connectors.Request{}, fmt.Errorf("%w: demotms: operation %q", domain.ErrWriteBackUnsupported, delta.Operation)
	}
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Connector) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: demotms connector closed", domain.ErrFatal)
	}
	return nil
}
