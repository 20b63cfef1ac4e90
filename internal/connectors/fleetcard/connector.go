package fleetcard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/custodia-labs/fleetsync/internal/connectors"
	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
	"github.com/custodia-labs/fleetsync/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// ProviderType is the factory key of this provider.
const ProviderType = "fleetcard"

// Credential keys.
const (
	CredBaseURL      = "base_url"
	CredTokenURL     = "token_url"
	CredClientID     = "client_id"
	CredClientSecret = "client_secret"
	CredScopes       = "scopes"
)

const (
	// DefaultBaseURL is the hosted fuel-card API.
	DefaultBaseURL = "https://api.fleetcard.io"

	// DefaultScopes are requested when the connection names none.
	DefaultScopes = "transactions:read"

	// MaxPageSize is the largest limit the API accepts.
	MaxPageSize = 500
)

// Descriptor describes the provider for the factory and the CLI.
func Descriptor() domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		ID:          ProviderType,
		Name:        "FleetCard",
		Description: "Fuel-card transactions",
		CredentialKeys: []domain.CredentialKey{
			{Key: CredBaseURL, Label: "API base URL", Default: DefaultBaseURL},
			{Key: CredTokenURL, Label: "Token URL (default: <base_url>/oauth/token)"},
			{Key: CredClientID, Label: "Client ID", Required: true},
			{Key: CredClientSecret, Label: "Client secret", Required: true, Secret: true},
			{Key: CredScopes, Label: "Scopes (comma separated)", Default: DefaultScopes},
		},
		EntityTypes: []domain.EntityType{domain.EntityFuelTransactions},
	}
}

// Options are process-level settings shared by every FleetCard connector.
type Options struct {
	HTTPClient *http.Client
	UserAgent  string
}

// Builder returns a factory builder using opts.
func Builder(opts Options) driven.ConnectorBuilder {
	return func(conn domain.Connection) (driven.Connector, error) {
		return New(conn, opts)
	}
}

// Connector reads fuel transactions from FleetCard.
type Connector struct {
	connectionID string
	client       *connectors.Client
	tokenURL     string

	mu     sync.Mutex
	closed bool
}

// New creates a FleetCard connector for a connection.
func New(conn domain.Connection, opts Options) (*Connector, error) {
	client, err := connectors.NewClient(connectors.ClientOptions{
		Provider:   ProviderType,
		BaseURL:    connectors.Credential(conn.Credentials, CredBaseURL, DefaultBaseURL),
		HTTPClient: opts.HTTPClient,
		UserAgent:  opts.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	return &Connector{
		connectionID: conn.ID,
		client:       client,
		tokenURL:     connectors.Credential(conn.Credentials, CredTokenURL, client.BaseURL()+"/oauth/token"),
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
		EntityTypes:         []domain.EntityType{domain.EntityFuelTransactions},
		SupportsDeltaFilter: true,
		MaxPageSize:         MaxPageSize,
	}
}

// Authenticate runs the OAuth2 client-credentials grant.
func (c *Connector) Authenticate(ctx context.Context, credentials map[string]string) (*driven.Session, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	cfg := clientcredentials.Config{
		ClientID:     connectors.Credential(credentials, CredClientID, ""),
		ClientSecret: connectors.Credential(credentials, CredClientSecret, ""),
		TokenURL:     connectors.Credential(credentials, CredTokenURL, c.tokenURL),
		Scopes:       splitScopes(connectors.Credential(credentials, CredScopes, DefaultScopes)),
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: fleetcard: %s and %s are required", domain.ErrFatal, CredClientID, CredClientSecret)
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, c.client.HTTPClient())
	tok, err := cfg.Token(tokenCtx)
	if err != nil {
		return nil, classifyTokenError(ctx, err)
	}

	logger.Debug("fleetcard token issued",
		zap.String("connection_id", c.connectionID),
		zap.Time("expires_at", tok.Expiry))
	return &driven.Session{Token: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

// classifyTokenError maps token endpoint failures onto the taxonomy.
// A rejected client is fatal.
func classifyTokenError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) || retrieveErr.Response == nil {
		return fmt.Errorf("%w: fleetcard token: %w", domain.ErrTransient, err)
	}

	status := retrieveErr.Response.StatusCode
	switch {
	case status == http.StatusTooManyRequests:
		retryAfter, _ := connectors.ParseRetryAfter(retrieveErr.Response.Header.Get(connectors.HeaderRetryAfter), time.Now())
		return fmt.Errorf("fleetcard token: %w", &domain.RateLimitError{RetryAfter: retryAfter, Status: status})
	case status >= 500:
		return fmt.Errorf("%w: fleetcard token: %w", domain.ErrTransient, err)
	default:
		return fmt.Errorf("%w: fleetcard: client rejected: %w", domain.ErrFatal, err)
	}
}

type transactionsEnvelope struct {
	Transactions []driven.RawItem `json:"transactions"`
	NextCursor   *string          `json:"next_cursor"`
	TotalCount   *int             `json:"total_count"`
}

// FetchPage fetches one page of transactions. Cursors are opaque provider tokens.
func (c *Connector) FetchPage(ctx context.Context, session *driven.Session, req driven.FetchRequest) (*driven.Page, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if session == nil || session.Token == "" {
		return nil, fmt.Errorf("%w: fleetcard: no session", domain.ErrAuthExpired)
	}
	if req.EntityType != domain.EntityFuelTransactions {
		return nil, fmt.Errorf("%w: fleetcard does not expose %s", domain.ErrUnsupportedType, req.EntityType)
	}

	limit := req.PageSize
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if req.Cursor != "" {
		query.Set("cursor", req.Cursor)
	}
	if !req.UpdatedSince.IsZero() {
		query.Set("modifiedAfter", connectors.FormatTime(req.UpdatedSince))
	}

	var env transactionsEnvelope
	if err := c.client.Do(ctx, connectors.Request{
		Method: http.MethodGet,
		Path:   "/v2/transactions",
		Query:  query,
		Token:  session.Token,
	}, &env); err != nil {
		return nil, err
	}

	page := &driven.Page{Items: env.Transactions, TotalCount: -1}
	if env.TotalCount != nil {
		page.TotalCount = *env.TotalCount
	}
	if env.NextCursor != nil && len(env.Transactions) > 0 {
		page.NextCursor = *env.NextCursor
	}
	return page, nil
}

type cardTransaction struct {
	TransactionID   connectors.FlexString `json:"transaction_id"`
	CardNumber      string                `json:"card_number"`
	TransactionDate string                `json:"transaction_date"`
	Vehicle         struct {
		UnitNumber connectors.FlexString `json:"unit_number"`
	} `json:"vehicle"`
	Driver struct {
		Name string `json:"name"`
	} `json:"driver"`
	Merchant struct {
		Name  string `json:"name"`
		City  string `json:"city"`
		State string `json:"state"`
	} `json:"merchant"`
	Product struct {
		Type string `json:"type"`
	} `json:"product"`
	Gallons     json.Number `json:"quantity_gallons"`
	UnitPrice   json.Number `json:"unit_price"`
	TotalAmount json.Number `json:"total_amount"`
	ModifiedAt  string      `json:"modified_at"`
}

// MapToCanonical converts a card transaction to a canonical entity.
func (c *Connector) MapToCanonical(entityType domain.EntityType, item driven.RawItem) (*domain.CanonicalEntity, error) {
	if entityType != domain.EntityFuelTransactions {
		return nil, connectors.MappingError(entityType, "fleetcard does not expose this type")
	}

	var tx cardTransaction
	if err := connectors.DecodeItem(entityType, item, &tx); err != nil {
		return nil, err
	}
	if tx.TransactionID == "" {
		return nil, connectors.MappingError(entityType, "missing transaction_id")
	}

	at, err := connectors.ParseTimestamp(tx.TransactionDate)
	if err != nil || at.IsZero() {
		return nil, connectors.MappingError(entityType, "transaction %s: invalid transaction_date %q", tx.TransactionID, tx.TransactionDate)
	}
	modified, err := connectors.ParseTimestamp(tx.ModifiedAt)
	if err != nil {
		return nil, connectors.MappingError(entityType, "transaction %s: %v", tx.TransactionID, err)
	}

	var gallons float64
	if tx.Gallons != "" {
		if gallons, err = tx.Gallons.Float64(); err != nil {
			return nil, connectors.MappingError(entityType, "transaction %s: invalid quantity %q", tx.TransactionID, tx.Gallons)
		}
	}
	price, err := connectors.Cents(tx.UnitPrice)
	if err != nil {
		return nil, connectors.MappingError(entityType, "transaction %s: %v", tx.TransactionID, err)
	}
	total, err := connectors.Cents(tx.TotalAmount)
	if err != nil {
		return nil, connectors.MappingError(entityType, "transaction %s: %v", tx.TransactionID, err)
	}

	return &domain.CanonicalEntity{
		Type:         entityType,
		NaturalKey:   tx.TransactionID.String(),
		ConnectionID: c.connectionID,
		RawPayload:   append([]byte(nil), item...),
		Fields: &domain.FuelTransaction{
			CardLast4:           last4(tx.CardNumber),
			TransactionAt:       at,
			VehicleUnit:         tx.Vehicle.UnitNumber.String(),
			DriverName:          strings.TrimSpace(tx.Driver.Name),
			MerchantName:        tx.Merchant.Name,
			City:                tx.Merchant.City,
			State:               strings.ToUpper(tx.Merchant.State),
			FuelType:            strings.ToLower(strings.TrimSpace(tx.Product.Type)),
			Gallons:             gallons,
			PricePerGallonCents: price,
			TotalCents:          total,
		},
		SourceUpdatedAt: modified,
	}, nil
}

// PushUpdate is not supported by FleetCard.
func (c *Connector) PushUpdate(_ context.Context, _ *driven.Session, _ domain.EntityDelta) (*domain.PushAck, error) {
	return nil, fmt.Errorf("%w: fleetcard", domain.ErrWriteBackUnsupported)
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
		return fmt.Errorf("%w: fleetcard connector closed", domain.ErrFatal)
	}
	return nil
}

func splitScopes(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
}

// last4 keeps the trailing digits of a masked card number.
func last4(card string) string {
	var digits []rune
	for _, r := range card {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return string(digits)
}
