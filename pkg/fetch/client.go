// Package fetch provides the shared rate-limited, cached HTTP fetch primitive
// used by every loader. The call order is fixed: response cache first, then
// the global token bucket, then the network with bounded retries. A cache hit
// never consumes a rate-limit token, so re-running a failed ingestion job does
// not re-burn the rate budget on pages that were already fetched.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/civicdata/registry-ingest/pkg/cache"
	"github.com/civicdata/registry-ingest/pkg/logging"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_fetch_requests_total",
		Help: "Total upstream requests by host and outcome",
	}, []string{"host", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_fetch_duration_seconds",
		Help:    "Upstream request duration in seconds by host",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"host"})

	limiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_fetch_limiter_wait_seconds",
		Help:    "Time spent waiting for a rate limiter token",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 60, 300},
	})

	limiterTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_fetch_limiter_timeouts_total",
		Help: "Requests abandoned because no rate limiter token arrived in time",
	})
)

// Request identifies one upstream call. It doubles as the cache identity:
// two requests with the same method, URL, query and header subset share a
// cache entry.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers map[string]string
}

// cacheKey derives the response cache key for the request.
func (r Request) cacheKey() cache.Key {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return cache.Key{
		Method:  method,
		URL:     r.URL,
		Query:   r.Query,
		Headers: r.Headers,
	}
}

// Response is a fully buffered upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// FromCache is true when the response was served from the cache without
	// touching the network or the rate limiter.
	FromCache bool
}

// Config holds the client configuration.
type Config struct {
	// Cache is the shared response cache. Required.
	Cache *cache.Manager

	// UserAgent identifies the ingestion job to the upstream registries.
	UserAgent string

	// RequestInterval is the token refill interval of the global limiter.
	// One request is admitted per interval; there is no burst tolerance
	// because the upstream APIs document none.
	RequestInterval time.Duration

	// MaxLimiterWait bounds how long a single fetch may wait for a token
	// before failing with ErrRateLimitTimeout.
	MaxLimiterWait time.Duration

	// RequestTimeout is the per-attempt network timeout.
	RequestTimeout time.Duration

	// CacheTTL is the fixed lifetime of cached responses.
	CacheTTL time.Duration

	// Retry controls transport-level retries for transient failures.
	Retry RetryConfig
}

// DefaultConfig returns a conservative default configuration.
func DefaultConfig(cacheManager *cache.Manager, userAgent string) Config {
	return Config{
		Cache:           cacheManager,
		UserAgent:       userAgent,
		RequestInterval: 2 * time.Second,
		MaxLimiterWait:  5 * time.Minute,
		RequestTimeout:  30 * time.Second,
		CacheTTL:        cache.DefaultTTL,
		Retry:           DefaultRetryConfig(),
	}
}

// Client is the shared fetch primitive. One Client is constructed at startup
// and injected into every loader; the token bucket inside it is the process's
// entire outbound budget.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a new rate-limited caching client.
func New(cfg Config) (*Client, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache manager is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = 2 * time.Second
	}
	if cfg.MaxLimiterWait <= 0 {
		cfg.MaxLimiterWait = 5 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		cache:   cfg.Cache,
		limiter: rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		config:  cfg,
		logger:  logging.NewLogger("fetch"),
	}, nil
}

// Fetch performs a cached, rate-limited request.
//
// On a cache hit the response is returned immediately. On a miss the call
// waits for a limiter token (bounded by MaxLimiterWait), performs the request
// with bounded retries for transient failures, caches successful responses
// with the fixed TTL, and returns. 4xx responses fail with *PermanentError
// and are never retried or cached.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	key := req.cacheKey()
	host := hostOf(req.URL)

	// Step 1: cache lookup, before any token is consumed
	if entry, err := c.cache.Get(ctx, key); err == nil {
		c.logger.Debug().
			Str("endpoint", req.URL).
			Msg("Cache hit")
		requestsTotal.WithLabelValues(host, "cache_hit").Inc()
		return &Response{
			StatusCode: entry.StatusCode,
			Header:     entry.Headers,
			Body:       entry.Data,
			FromCache:  true,
		}, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		// A broken cache degrades to a plain rate-limited fetch
		c.logger.Warn().Err(err).Str("endpoint", req.URL).Msg("Cache get error")
	}

	// Step 2: acquire a token from the global bucket
	if err := c.waitForToken(ctx); err != nil {
		requestsTotal.WithLabelValues(host, "rate_limit_timeout").Inc()
		return nil, err
	}

	// Step 3: network request with bounded retries
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
	}()

	var resp *Response
	retryErr := retryWithBackoff(ctx, c.logger, c.config.Retry, func() error {
		var err error
		resp, err = c.doOnce(ctx, req)
		return err
	})
	if retryErr != nil {
		requestsTotal.WithLabelValues(host, "error").Inc()
		return nil, retryErr
	}

	requestsTotal.WithLabelValues(host, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	// Step 4: cache the successful response
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		entry := cache.NewEntry(resp.StatusCode, resp.Header, resp.Body, c.config.CacheTTL)
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", req.URL).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// GetJSON fetches req and decodes the response body into v.
func (c *Client) GetJSON(ctx context.Context, req Request, v any) error {
	resp, err := c.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL, err)
	}
	return nil
}

// waitForToken blocks until the global limiter grants a slot, bounded by
// MaxLimiterWait.
func (c *Client) waitForToken(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.config.MaxLimiterWait)
	defer cancel()

	start := time.Now()
	err := c.limiter.Wait(waitCtx)
	limiterWaitSeconds.Observe(time.Since(start).Seconds())

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	}

	limiterTimeoutsTotal.Inc()
	c.logger.Warn().
		Dur("waited", time.Since(start)).
		Msg("No rate limiter token within wait bound")
	return ErrRateLimitTimeout
}

// doOnce performs a single HTTP attempt and classifies the outcome.
func (c *Client) doOnce(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, methodOf(req), req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if len(req.Query) > 0 {
		httpReq.URL.RawQuery = req.Query.Encode()
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures share the retry policy
		return nil, &TransientError{URL: req.URL, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransientError{URL: req.URL, Err: err}
	}

	switch {
	case httpResp.StatusCode >= 500:
		c.logger.Warn().
			Str("endpoint", req.URL).
			Int("status", httpResp.StatusCode).
			Msg("Upstream server error")
		return nil, &TransientError{URL: req.URL, StatusCode: httpResp.StatusCode}
	case httpResp.StatusCode >= 400:
		c.logger.Warn().
			Str("endpoint", req.URL).
			Int("status", httpResp.StatusCode).
			Msg("Upstream client error")
		return nil, &PermanentError{URL: req.URL, StatusCode: httpResp.StatusCode, Status: httpResp.Status}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       body,
	}, nil
}

func methodOf(req Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetRequestInterval replaces the limiter (for testing with a faster refill).
func (c *Client) SetRequestInterval(interval time.Duration) {
	c.limiter = rate.NewLimiter(rate.Every(interval), 1)
}
