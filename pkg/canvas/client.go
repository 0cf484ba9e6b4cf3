// Package canvas provides the core Canvas API HTTP client with rate-limit
// dispatch, response caching, and error classification.
package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coursekit/canvas-client/pkg/cache"
	"github.com/coursekit/canvas-client/pkg/dispatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Canvas client operations.
var (
	canvasRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_requests_total",
		Help: "Total Canvas requests by method and status",
	}, []string{"method", "status"})

	canvasRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "canvas_request_duration_seconds",
		Help:    "Canvas request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	canvasErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_errors_total",
		Help: "Total Canvas client errors by kind",
	}, []string{"kind"})
)

// Multipart is a prepared multipart/form-data request body. ContentType
// must be the writer-provided value carrying the boundary; the client
// never overrides it.
type Multipart struct {
	ContentType string
	Body        []byte
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://school.instructure.com/api/v1".
	// It is normalized to end with a path separator.
	BaseURL string

	// Token is the bearer access token.
	Token string

	// UserAgent is the fixed client identifier header.
	UserAgent string

	// Timeout is the instance-level request deadline (0 = none).
	// Overridable per call with WithTimeout.
	Timeout time.Duration

	// RateLimitInterval is the dispatcher rate window. Default: 1 second.
	RateLimitInterval time.Duration

	// DisableThrottling bypasses the dispatcher entirely: no queueing,
	// no retry, no shared state. For callers who want parallelism.
	DisableThrottling bool

	// Dispatcher is the shared dispatch handle. Clients injecting the
	// same handle serialize through one queue. Nil means this client
	// gets its own.
	Dispatcher *dispatch.Dispatcher

	// Redis enables the GET response cache when set.
	Redis *redis.Client

	// CacheTTL is the response cache lifetime. Default: 60 seconds.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:           baseURL,
		Token:             token,
		UserAgent:         "canvas-client/1.0 (go)",
		RateLimitInterval: time.Second,
		CacheTTL:          60 * time.Second,
	}
}

// Client is the Canvas API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	dispatcher *dispatch.Dispatcher
	cache      *cache.Manager
	logger     zerolog.Logger
}

// New creates a new Canvas client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "canvas-client/1.0 (go)"
	}
	if cfg.RateLimitInterval <= 0 {
		cfg.RateLimitInterval = time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}

	// Normalize the base URL to end with a path separator so relative
	// endpoints resolve under it instead of replacing its last segment.
	raw := cfg.BaseURL
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	logger := log.With().Str("component", "canvas-client").Logger()

	c := &Client{
		httpClient: &http.Client{},
		baseURL:    base,
		config:     cfg,
		logger:     logger,
	}

	if !cfg.DisableThrottling {
		c.dispatcher = cfg.Dispatcher
		if c.dispatcher == nil {
			c.dispatcher = dispatch.New(dispatch.Options{
				Interval: cfg.RateLimitInterval,
				Logger:   log.With().Str("component", "canvas-dispatch").Logger(),
			})
		}
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// Dispatcher returns the dispatch handle this client sends through, or
// nil when throttling is disabled. Inject it into another client's
// Config to share one queue.
func (c *Client) Dispatcher() *dispatch.Dispatcher {
	return c.dispatcher
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the instance-level timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// URL builds the absolute request URL for an endpoint plus query
// parameters. Endpoints resolve against the normalized base URL.
func (c *Client) URL(endpoint string, params Params) (string, error) {
	ref, err := url.Parse(strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	return c.baseURL.ResolveReference(ref).String() + EncodeQuery(params), nil
}

// Call performs a mutate-style request (POST, PUT, PATCH, DELETE) and
// returns the parsed response envelope. GET is rejected here: reads need
// the pagination-aware path (Get, or the pagination package).
func (c *Client) Call(ctx context.Context, method, endpoint string, params Params, body any, opts ...CallOption) (*Response, error) {
	if strings.EqualFold(method, http.MethodGet) {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, ErrGetNotAllowed)
	}

	target, err := c.URL(endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, &RequestError{Cause: err})
	}

	resp, err := c.roundTrip(ctx, method, target, body, opts)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	return resp, nil
}

// Get performs a GET request for a single endpoint.
func (c *Client) Get(ctx context.Context, endpoint string, params Params, opts ...CallOption) (*Response, error) {
	target, err := c.URL(endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", endpoint, &RequestError{Cause: err})
	}
	return c.GetPage(ctx, target, opts...)
}

// GetPage performs a GET against a fully-formed URL, consulting the
// response cache when one is configured. Pagination uses this for the
// verbatim next-page URLs extracted from Link headers.
func (c *Client) GetPage(ctx context.Context, rawurl string, opts ...CallOption) (*Response, error) {
	if c.cache != nil {
		key := cache.Key{URL: rawurl}
		if entry, err := c.cache.Get(ctx, key); err == nil {
			c.logger.Debug().Str("url", rawurl).Msg("Response cache hit")
			return &Response{
				StatusCode: entry.StatusCode,
				Header:     entry.Header,
				Text:       string(entry.Body),
				JSON:       decodeOrNil(entry.Body),
			}, nil
		} else if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("url", rawurl).Msg("Cache get error")
		}
	}

	resp, err := c.roundTrip(ctx, http.MethodGet, rawurl, nil, opts)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawurl, err)
	}

	if c.cache != nil && resp.StatusCode == http.StatusOK {
		entry := &cache.Entry{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       []byte(resp.Text),
			CachedAt:   time.Now(),
			Expires:    time.Now().Add(c.config.CacheTTL),
		}
		if err := c.cache.Set(ctx, cache.Key{URL: rawurl}, entry); err != nil {
			c.logger.Warn().Err(err).Str("url", rawurl).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// roundTrip encodes the body, sends the request through the dispatcher
// (or directly when throttling is disabled), and classifies the result.
func (c *Client) roundTrip(ctx context.Context, method, target string, body any, opts []CallOption) (*Response, error) {
	var options callOptions
	for _, opt := range opts {
		opt(&options)
	}

	timeout := options.timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload, contentType, err := encodeBody(body)
	if err != nil {
		canvasErrorsTotal.WithLabelValues("request").Inc()
		return nil, &RequestError{Cause: err}
	}

	// The dispatcher may re-invoke send on retry, so each attempt builds
	// a fresh request with its own body reader.
	send := func() (*http.Response, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
		req.Header.Set("User-Agent", c.config.UserAgent)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return c.httpClient.Do(req)
	}

	start := time.Now()
	defer func() {
		canvasRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	var raw *http.Response
	if c.dispatcher != nil {
		raw, err = c.dispatcher.Do(ctx, send)
	} else {
		raw, err = send()
	}

	if err != nil {
		return nil, c.classifySendError(method, target, err)
	}

	envelope, err := NewResponse(raw)
	if err != nil {
		canvasErrorsTotal.WithLabelValues("request").Inc()
		return nil, err
	}

	canvasRequestsTotal.WithLabelValues(method, fmt.Sprintf("%d", envelope.StatusCode)).Inc()

	if envelope.StatusCode >= 400 {
		canvasErrorsTotal.WithLabelValues("response").Inc()
		c.logger.Warn().
			Str("method", method).
			Str("url", target).
			Int("status", envelope.StatusCode).
			Msg("Canvas request error")
		return nil, &ResponseError{Response: envelope}
	}

	return envelope, nil
}

// classifySendError maps a transport failure onto the error taxonomy.
func (c *Client) classifySendError(method, target string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		canvasErrorsTotal.WithLabelValues("timeout").Inc()
		c.logger.Warn().Str("method", method).Str("url", target).Msg("Canvas request timed out")
		return &TimeoutError{Cause: err}
	}
	if errors.Is(err, dispatch.ErrRetryExhausted) {
		canvasErrorsTotal.WithLabelValues("rate_limit").Inc()
		return err
	}
	canvasErrorsTotal.WithLabelValues("request").Inc()
	c.logger.Error().Err(err).Str("method", method).Str("url", target).Msg("Canvas request failed")
	return &RequestError{Cause: err}
}

// encodeBody serializes a request body by shape: multipart bodies keep
// their writer-provided content type, strings go as plain text, anything
// else is JSON-encoded. A nil body sends nothing.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case Multipart:
		return b.Body, b.ContentType, nil
	case *Multipart:
		return b.Body, b.ContentType, nil
	case string:
		return []byte(b), "text/plain", nil
	case []byte:
		return b, "application/json", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return data, "application/json", nil
	}
}

func decodeOrNil(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}
