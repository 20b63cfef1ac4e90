package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/logger"
	"github.com/custodia-labs/fleetsync/internal/metrics"
)

const (
	// HeaderRetryAfter is the retry-after header (seconds or HTTP date).
	HeaderRetryAfter = "Retry-After"

	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is kept in messages.
	maxErrorBody = 512
)

// APIError is a non-2xx provider response.
// It wraps the taxonomy error matching its status code.
type APIError struct {
	StatusCode int
	Message    string
	Method     string
	Path       string
	kind       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Unwrap returns the taxonomy error.
func (e *APIError) Unwrap() error {
	return e.kind
}

// ClientOptions configures a provider HTTP client.
type ClientOptions struct {
	// Provider labels logs and metrics.
	Provider string

	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string

	// RequestsPerSecond throttles requests client-side. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// Now is injectable for tests.
	Now func() time.Time
}

// Client is the HTTP transport shared by provider connectors.
// Responses are mapped onto the domain error taxonomy.
type Client struct {
	provider   string
	baseURL    string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient creates a provider HTTP client.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: base URL is required", domain.ErrInvalidInput)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: base URL %q: %w", domain.ErrInvalidInput, base, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Client{
		provider:   opts.Provider,
		baseURL:    base,
		httpClient: httpClient,
		userAgent:  opts.UserAgent,
		now:        now,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Request describes one provider call.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Token is sent as a bearer token when set.
	Token string

	// Body is JSON-encoded when non-nil.
	Body any
}

// Do sends the request and decodes a JSON response into out (if non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	raw, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return DecodeJSON(raw, out)
}

// DoRaw sends the request and returns the raw response body of a 2xx response.
func (c *Client) DoRaw(ctx context.Context, req Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrTransient, req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	metrics.ProviderRequests.WithLabelValues(c.provider, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %w", domain.ErrTransient, req.Path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return body, nil
	}

	apiErr := ClassifyResponse(resp, body, c.now())
	logger.Debug("provider request failed",
		zap.String("provider", c.provider),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Error(apiErr))
	return nil, apiErr
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", req.Path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domain.ErrFatal, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	return httpReq, nil
}

// ClassifyResponse maps a non-2xx response onto the error taxonomy:
// 401 is AuthExpired, 429 is RateLimited, 5xx and 408 are Transient, every
// other status is Fatal.
func ClassifyResponse(resp *http.Response, body []byte, now time.Time) error {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.Path = resp.Request.URL.Path
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.kind = domain.ErrAuthExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := ParseRetryAfter(resp.Header.Get(HeaderRetryAfter), now)
		apiErr.kind = &domain.RateLimitError{RetryAfter: retryAfter, Status: resp.StatusCode}
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout:
		apiErr.kind = domain.ErrTransient
	default:
		apiErr.kind = domain.ErrFatal
	}
	return apiErr
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(header string, now time.Time) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(header); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// DecodeJSON unmarshals a provider payload. Malformed payloads are Fatal
// since retrying yields the same bytes.
func DecodeJSON(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrFatal, err)
	}
	return nil
}

// errorMessage extracts a message from common error envelopes.
func errorMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Message          string `json:"message"`
		Error            any    `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		switch {
		case envelope.Message != "":
			return envelope.Message
		case envelope.ErrorDescription != "":
			return envelope.ErrorDescription
		}
		if s, ok := envelope.Error.(string); ok && s != "" {
			return s
		}
		if m, ok := envelope.Error.(map[string]any); ok {
			if s, ok := m["message"].(string); ok && s != "" {
				return s
			}
		}
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Credential returns creds[key], or def when the key is absent or blank.
func Credential(creds map[string]string, key, def string) string {
	if v := strings.TrimSpace(creds[key]); v != "" {
		return v
	}
	return def
}

// FormatTime formats a delta filter timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
