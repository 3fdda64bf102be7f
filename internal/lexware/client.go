package lexware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"invoicesync/internal/config"
	"invoicesync/internal/metrics"

	"github.com/rs/zerolog"
)

const (
	maxResponseBytes = 32 << 20
	traceBodyLimit   = 4096
)

// CallTrace describes one request against the accounting API.
type CallTrace struct {
	Method       string
	Endpoint     string
	StatusCode   int
	RequestBody  string
	ResponseBody string
	Duration     time.Duration
}

// CallRecorder receives call traces when API logging is enabled.
type CallRecorder interface {
	RecordCall(ctx context.Context, trace CallTrace)
}

// Client talks to the Lexware Office REST API. It holds no per-order state and
// never retries; the queue decides when a failed call is repeated.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	loc        *time.Location
	recorder   CallRecorder
	logger     *zerolog.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRecorder(r CallRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func withClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg config.LexwareConfig, opts ...Option) (*Client, error) {
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse lexware base url: %w", err)
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = "Europe/Berlin"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	nop := zerolog.Nop()
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		loc:        loc,
		logger:     &nop,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type request struct {
	method   string
	endpoint string
	query    url.Values
	body     any
	accept   string
}

// do performs one call and returns the raw response body of a 2xx answer.
func (c *Client) do(ctx context.Context, s config.SyncSettings, r request) ([]byte, error) {
	apiKey := strings.TrimSpace(s.APIKey)
	if apiKey == "" {
		return nil, ErrMissingCredentials
	}

	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return nil, fmt.Errorf("encode %s request: %w", r.endpoint, err)
		}
	}

	ref := &url.URL{Path: r.endpoint}
	if len(r.query) > 0 {
		ref.RawQuery = r.query.Encode()
	}
	target := c.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, r.method, target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", r.endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	op := r.method + " " + r.endpoint
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAPICall(endpointLabel(r.endpoint), 0)
		c.trace(ctx, s, r, payload, 0, []byte(err.Error()), time.Since(started))
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	elapsed := time.Since(started)
	metrics.ObserveAPICall(endpointLabel(r.endpoint), resp.StatusCode)
	traced := data
	if r.accept == "application/pdf" && resp.StatusCode < 300 {
		traced = []byte(fmt.Sprintf("<%d bytes pdf>", len(data)))
	}
	c.trace(ctx, s, r, payload, resp.StatusCode, traced, elapsed)

	c.logger.Debug().
		Str("method", r.method).
		Str("endpoint", r.endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Msg("lexware api call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, s config.SyncSettings, r request, out any) error {
	data, err := c.do(ctx, s, r)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.endpoint, err)
	}
	return nil
}

func (c *Client) trace(ctx context.Context, s config.SyncSettings, r request, payload []byte, status int, body []byte, d time.Duration) {
	if c.recorder == nil || !s.EnableLogging {
		return
	}
	c.recorder.RecordCall(ctx, CallTrace{
		Method:       r.method,
		Endpoint:     r.endpoint,
		StatusCode:   status,
		RequestBody:  truncate(string(payload), traceBodyLimit),
		ResponseBody: string(body),
		Duration:     d,
	})
}

// errorMessage prefers the API's "message" field and falls back to the raw body.
func errorMessage(body []byte, status string) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	if raw := strings.TrimSpace(string(body)); raw != "" {
		return truncate(raw, 500)
	}
	return status
}

// endpointLabel keeps metric cardinality bounded: "invoices/abc" becomes "invoices".
func endpointLabel(endpoint string) string {
	head, _, _ := strings.Cut(endpoint, "/")
	return head
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Profile is the organisation behind the API key.
type Profile struct {
	OrganizationID string `json:"organizationId"`
	CompanyName    string `json:"companyName"`
	Created        struct {
		UserName  string `json:"userName"`
		UserEmail string `json:"userEmail"`
	} `json:"created"`
}

// Profile checks the connection and the API key.
func (c *Client) Profile(ctx context.Context, s config.SyncSettings) (*Profile, error) {
	var p Profile
	if err := c.doJSON(ctx, s, request{method: http.MethodGet, endpoint: "profile"}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
