// Package clients provides the HTTP transport used by forcetap connectors.
// It is a thin wrapper over net/http that injects headers, surfaces non-2xx
// responses as structured errors carrying the response body, and invokes a
// per-response hook so the quota governor can account for every call.
package clients

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/datastreamhq/forcetap/pkg/errors"
	"github.com/datastreamhq/forcetap/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// maxErrorBodyBytes bounds how much of an error response body is read
// for logging and error details.
const maxErrorBodyBytes = 16 * 1024

// ResponseHook is invoked for every response with a 2xx status before it
// is returned to the caller. Returning an error aborts the call; the
// response body is closed.
type ResponseHook func(headers http.Header) error

// HTTPClient wraps net/http with header injection, error surfacing, and
// rate limiting. One client instance is shared by every component that
// talks to the platform; auth headers are resolved per call by the owner.
type HTTPClient struct {
	config       *HTTPConfig
	logger       *zap.Logger
	httpClient   *http.Client
	transport    *http.Transport
	rateLimiter  *RateLimiter
	responseHook ResponseHook
}

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Timeouts
	DialTimeout           time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	KeepAlive             time.Duration `json:"keep_alive"`
	IdleConnTimeout       time.Duration `json:"idle_conn_timeout"`

	// Connection settings
	MaxIdleConns        int  `json:"max_idle_conns"`
	MaxIdleConnsPerHost int  `json:"max_idle_conns_per_host"`
	EnableHTTP2         bool `json:"enable_http2"`

	// Rate limiting
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`
}

// DefaultHTTPConfig returns default configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		KeepAlive:             30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		EnableHTTP2:           true,
	}
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}

	client := &HTTPClient{
		config: config,
		logger: logger.With(zap.String("component", "http_client")),
	}

	client.transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(client.transport); err != nil {
			logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	// No overall client timeout: result-set downloads stream for an
	// unbounded time. ResponseHeaderTimeout bounds the wait for headers.
	client.httpClient = &http.Client{
		Transport: client.transport,
	}

	if config.RateLimit > 0 {
		client.rateLimiter = NewRateLimiter(config.RateLimit, config.RateBurst)
	}

	return client
}

// SetResponseHook installs the hook invoked on every successful response
func (c *HTTPClient) SetResponseHook(hook ResponseHook) {
	c.responseHook = hook
}

// Get performs an HTTP GET request. The caller owns the response body.
func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url, nil, headers)
}

// Post performs an HTTP POST request with the given body
func (c *HTTPClient) Post(ctx context.Context, url, body string, headers map[string]string) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, url, strings.NewReader(body), headers)
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			metrics.RestRequests.WithLabelValues(method, "rate_limited").Inc()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "rate limit wait interrupted")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create request")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "forcetap/1.0")
	}

	c.logger.Debug("making request",
		zap.String("method", method),
		zap.String("url", url))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RestRequests.WithLabelValues(method, "error").Inc()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RestRequests.WithLabelValues(method, "http_error").Inc()
		return nil, c.surfaceError(resp, method, url)
	}
	metrics.RestRequests.WithLabelValues(method, "ok").Inc()

	if c.responseHook != nil {
		if err := c.responseHook(resp.Header); err != nil {
			_ = resp.Body.Close()
			return nil, err
		}
	}

	return resp, nil
}

// surfaceError drains the error response body into a structured error.
// The body is logged so quota and auth failures are diagnosable from
// run output alone.
func (c *HTTPClient) surfaceError(resp *http.Response, method, url string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	bodyText := string(bodyBytes)
	if readErr != nil {
		bodyText = "<unreadable body>"
	}

	c.logger.Error("request error",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.String("body", bodyText))

	return errors.Newf(errors.ErrorTypeRequest, "%s %s returned status %d", method, url, resp.StatusCode).
		WithDetail("status", resp.StatusCode).
		WithDetail("body", bodyText)
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
