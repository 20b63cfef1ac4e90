package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	stdsync "sync"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

const mockProviderType = "mocktms"

// mockItem is the wire shape the mock provider serves.
type mockItem struct {
	ID        string    `json:"id"`
	Liftgate  bool      `json:"liftgate,omitempty"`
	Status    string    `json:"status,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// mockProvider is a scripted provider shared by every connector the
// mock factory creates, so state survives across runs.
type mockProvider struct {
	mu stdsync.Mutex

	caps  driven.ConnectorCapabilities
	items map[domain.EntityType][]mockItem

	authErrs  []error
	authCalls int
	tokenTTL  time.Duration

	// fetchErrs are returned, in order, for fetches at a cursor.
	fetchErrs      map[string][]error
	fetchCalls     int
	fetchedCursors []string
	onFetch        func(cursor string)

	pushErrs  []error
	pushCalls int
	pushed    []domain.EntityDelta
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		caps: driven.ConnectorCapabilities{
			EntityTypes:       []domain.EntityType{domain.EntityVehicles, domain.EntityInvoices},
			SupportsWriteBack: true,
		},
		items:     make(map[domain.EntityType][]mockItem),
		fetchErrs: make(map[string][]error),
	}
}

// seed fills an entity type with n items named prefix-0000 onwards.
func (p *mockProvider) seed(t domain.EntityType, prefix string, n int, updatedAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]mockItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, mockItem{
			ID:        fmt.Sprintf("%s-%04d", prefix, i),
			Liftgate:  i%2 == 0,
			Status:    domain.InvoiceStatusOpen,
			UpdatedAt: updatedAt,
		})
	}
	p.items[t] = items
}

func (p *mockProvider) update(t domain.EntityType, idx int, fn func(*mockItem)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.items[t][idx])
}

func (p *mockProvider) failFetch(cursor string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchErrs[cursor] = append(p.fetchErrs[cursor], errs...)
}

func (p *mockProvider) cursors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.fetchedCursors...)
}

// mockConnector implements driven.Connector over a mockProvider.
type mockConnector struct {
	provider     *mockProvider
	connectionID string
	closed       bool
}

func (c *mockConnector) Type() string         { return mockProviderType }
func (c *mockConnector) ConnectionID() string { return c.connectionID }
func (c *mockConnector) Capabilities() driven.ConnectorCapabilities {
	return c.provider.caps
}

func (c *mockConnector) Authenticate(_ context.Context, _ map[string]string) (*driven.Session, error) {
	p := c.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authCalls++
	if len(p.authErrs) > 0 {
		err := p.authErrs[0]
		p.authErrs = p.authErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := &driven.Session{Token: fmt.Sprintf("token-%d", p.authCalls)}
	if p.tokenTTL > 0 {
		s.ExpiresAt = time.Now().Add(p.tokenTTL)
	}
	return s, nil
}

func (c *mockConnector) FetchPage(_ context.Context, _ *driven.Session, req driven.FetchRequest) (*driven.Page, error) {
	p := c.provider
	p.mu.Lock()
	p.fetchCalls++
	p.fetchedCursors = append(p.fetchedCursors, req.Cursor)
	hook := p.onFetch
	if errs := p.fetchErrs[req.Cursor]; len(errs) > 0 {
		p.fetchErrs[req.Cursor] = errs[1:]
		p.mu.Unlock()
		return nil, errs[0]
	}

	var src []mockItem
	for _, it := range p.items[req.EntityType] {
		if !req.UpdatedSince.IsZero() && it.UpdatedAt.Before(req.UpdatedSince) {
			continue
		}
		src = append(src, it)
	}
	p.mu.Unlock()

	if hook != nil {
		hook(req.Cursor)
	}

	offset := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: bad cursor %q", domain.ErrFatal, req.Cursor)
		}
		offset = n
	}
	size := req.PageSize
	if size <= 0 {
		size = 50
	}
	end := offset + size
	if end > len(src) {
		end = len(src)
	}
	if offset > end {
		offset = end
	}

	page := &driven.Page{TotalCount: len(src)}
	for _, it := range src[offset:end] {
		raw, _ := json.Marshal(it)
		page.Items = append(page.Items, raw)
	}
	if end < len(src) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (c *mockConnector) MapToCanonical(t domain.EntityType, item driven.RawItem) (*domain.CanonicalEntity, error) {
	var it mockItem
	if err := json.Unmarshal(item, &it); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMapping, err)
	}
	if it.ID == "" {
		return nil, fmt.Errorf("%w: item has no id", domain.ErrMapping)
	}
	e := &domain.CanonicalEntity{Type: t, NaturalKey: it.ID, SourceUpdatedAt: it.UpdatedAt}
	switch t {
	case domain.EntityVehicles:
		e.Fields = &domain.Vehicle{UnitNumber: it.ID, HasLiftgate: it.Liftgate}
	case domain.EntityInvoices:
		e.Fields = &domain.Invoice{Number: it.ID, Status: it.Status, AmountCents: 1000}
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrMapping, t)
	}
	return e, nil
}

func (c *mockConnector) PushUpdate(_ context.Context, _ *driven.Session, delta domain.EntityDelta) (*domain.PushAck, error) {
	p := c.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushCalls++
	if !p.caps.SupportsWriteBack {
		return nil, domain.ErrWriteBackUnsupported
	}
	if len(p.pushErrs) > 0 {
		err := p.pushErrs[0]
		p.pushErrs = p.pushErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	p.pushed = append(p.pushed, delta)
	return &domain.PushAck{ExternalID: delta.NaturalKey, Status: "ok"}, nil
}

func (c *mockConnector) Close() error {
	c.closed = true
	return nil
}

// mockFactory implements driven.ConnectorFactory with one mock provider.
type mockFactory struct {
	provider  *mockProvider
	createErr error
}

func (f *mockFactory) Create(_ context.Context, conn domain.Connection) (driven.Connector, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if conn.ProviderType != mockProviderType {
		return nil, domain.ErrUnsupportedType
	}
	return &mockConnector{provider: f.provider, connectionID: conn.ID}, nil
}

func (f *mockFactory) Register(_ domain.ProviderDescriptor, _ driven.ConnectorBuilder) {}

func (f *mockFactory) SupportedTypes() []string { return []string{mockProviderType} }

func (f *mockFactory) Describe(providerType string) (*domain.ProviderDescriptor, error) {
	if providerType != mockProviderType {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, providerType)
	}
	types := append([]domain.EntityType(nil), f.provider.caps.EntityTypes...)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return &domain.ProviderDescriptor{
		ID:   mockProviderType,
		Name: "Mock TMS",
		CredentialKeys: []domain.CredentialKey{
			{Key: "api_key", Label: "API key", Required: true, Secret: true},
			{Key: "base_url", Label: "Base URL", Default: "https://tms.example"},
		},
		EntityTypes:       types,
		SupportsWriteBack: f.provider.caps.SupportsWriteBack,
	}, nil
}

// fastRetry returns a policy that never sleeps and records requested delays.
func fastRetry(attempts int) (*RetryPolicy, *[]time.Duration) {
	var mu stdsync.Mutex
	var delays []time.Duration
	p := NewRetryPolicy(domain.RetrySettings{
		MaxAttempts: attempts,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
	})
	p.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	return p, &delays
}
