// Package gateway is the single HTTP client for the cobrand backend. It
// injects the session headers and normalizes every failure into an APIError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vadiminshakov/cobrand/pkg/retrier"
)

const (
	defaultTimeout      = 30 * time.Second
	maxResponseBodySize = 10 << 20

	HeaderTenant        = "tenant"
	HeaderCorrelationID = "X-Correlation-Id"
)

// HeaderSource supplies the session headers of outgoing calls.
type HeaderSource interface {
	Token(ctx context.Context) (string, bool)
	Tenant(ctx context.Context) (string, bool)
}

// Config configures the HTTP transport.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// RetryPolicy enables retries of network and server failures.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
}

// Request describes one backend call.
type Request struct {
	// Name labels the call in logs and metrics.
	Name   string
	Method string
	Path   string
	Query  url.Values
	Body   any
	Form   *Multipart
	// Token and Tenant override the session values when set.
	Token  string
	Tenant string
}

// Client calls the backend.
type Client struct {
	baseURL string
	http    *http.Client
	headers HeaderSource
	logger  *zap.Logger

	retrier *retrier.Retrier
	limiter *rate.Limiter
	metrics *Metrics
	newID   func() string
}

// Option configures a Client.
type Option func(*Client)

// WithRetry retries network and server failures of GET and HEAD calls
// according to policy. Calls with side effects are always fire-once, as are
// all calls under a policy with no retries.
func WithRetry(policy RetryPolicy) Option {
	return func(c *Client) {
		if policy.MaxRetries <= 0 {
			c.retrier = nil
			return
		}
		opts := []retrier.Option{
			retrier.WithMaxRetries(policy.MaxRetries),
			retrier.WithRetryIf(isRetryable),
			retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
				c.logger.Warn("retrying backend call",
					zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
			}),
		}
		if policy.InitialInterval > 0 {
			opts = append(opts, retrier.WithInitialInterval(policy.InitialInterval))
		}
		c.retrier = retrier.New(opts...)
	}
}

// WithRateLimiter throttles outgoing calls.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithMetrics records calls in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a backend client.
func New(cfg Config, headers HeaderSource, logger *zap.Logger, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, errors.Wrapf(err, "invalid api base url %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL: base,
		http:    httpClient,
		headers: headers,
		logger:  logger,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Caller performs a backend call and returns the 2xx body.
type Caller interface {
	Call(ctx context.Context, req Request) ([]byte, error)
}

// Call performs req and returns the raw 2xx body.
func (c *Client) Call(ctx context.Context, req Request) ([]byte, error) {
	name := requestName(req)

	payload, contentType, err := encodeBody(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: encode request", name)
	}

	send := func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, name, req, payload, contentType)
	}
	// a failed POST may still have been applied, so only reads are repeated
	if c.retrier == nil || !idempotent(req.Method) {
		return send(ctx)
	}
	return retrier.DoWithData(c.retrier, ctx, send)
}

// Do performs req and decodes a 2xx body into out. out may be nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(requestName(req), body, out)
}

func (c *Client) send(ctx context.Context, name string, req Request, payload []byte, contentType string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, networkError(name, errors.Wrap(err, "rate limit wait"))
		}
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: build request", name)
	}

	correlationID := c.newID()
	c.setHeaders(ctx, httpReq, req, contentType, correlationID)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observe(name, "network", time.Since(start))
		c.logger.Warn("backend call failed",
			zap.String("endpoint", name), zap.String("correlation_id", correlationID), zap.Error(err))
		return nil, networkError(name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	elapsed := time.Since(start)
	c.metrics.observe(name, strconv.Itoa(resp.StatusCode), elapsed)
	if err != nil {
		return nil, networkError(name, errors.Wrap(err, "read response body"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := normalizeError(name, resp.StatusCode, body)
		c.logger.Warn("backend call rejected",
			zap.String("endpoint", name),
			zap.Int("status", resp.StatusCode),
			zap.Strings("message", apiErr.Message),
			zap.String("correlation_id", correlationID),
			zap.Duration("elapsed", elapsed))
		return nil, apiErr
	}

	c.logger.Debug("backend call",
		zap.String("endpoint", name),
		zap.Int("status", resp.StatusCode),
		zap.String("correlation_id", correlationID),
		zap.Duration("elapsed", elapsed))
	return body, nil
}

func (c *Client) setHeaders(ctx context.Context, httpReq *http.Request, req Request, contentType, correlationID string) {
	token := req.Token
	tenant := req.Tenant
	if c.headers != nil {
		if token == "" {
			token, _ = c.headers.Token(ctx)
		}
		if tenant == "" {
			tenant, _ = c.headers.Tenant(ctx)
		}
	}

	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if tenant != "" {
		httpReq.Header.Set(HeaderTenant, tenant)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderCorrelationID, correlationID)
}

func encodeBody(req Request) ([]byte, string, error) {
	if req.Form != nil {
		return req.Form.encode()
	}
	if req.Body == nil {
		return nil, "application/json", nil
	}
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "marshal body")
	}
	return payload, "application/json", nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func isRetryable(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Retryable()
}

func requestName(req Request) string {
	if req.Name != "" {
		return req.Name
	}
	return req.Method + " " + req.Path
}
