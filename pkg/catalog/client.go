// Package catalog provides the HTTP client for the remote product listing API
// with throttling, caching, request collapsing and retry.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/storefront/pkg/cache"
	"github.com/Sternrassler/storefront/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL is the public demo API the storefront lists products from.
const DefaultBaseURL = "https://api.escuelajs.co/api/v1"

// Endpoint paths relative to the base URL.
const (
	EndpointProducts   = "/products"
	EndpointCategories = "/categories"
)

// Prometheus metrics for catalog client operations.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_catalog_requests_total",
		Help: "Total listing API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	catalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_catalog_request_duration_seconds",
		Help:    "Listing API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	catalogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_catalog_errors_total",
		Help: "Total listing API errors by class",
	}, []string{"class"})

	catalogSharedRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_catalog_shared_requests_total",
		Help: "Requests answered by joining an identical in-flight request",
	})
)

// responseCache is the subset of cache.Manager the client needs.
type responseCache interface {
	Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	GetStale(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	Set(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) error
	UpdateTTL(ctx context.Context, key cache.CacheKey, newExpires time.Time) error
	Delete(ctx context.Context, key cache.CacheKey) error
}

// Client talks to the listing API.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       responseCache
	group       singleflight.Group
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the listing API, e.g. "https://api.escuelajs.co/api/v1"
	BaseURL string

	// Redis enables the shared response cache and request throttle (optional)
	Redis *redis.Client

	// UserAgent sent with every request
	UserAgent string

	// RateLimit is the shared request budget per second (0 = unlimited)
	RateLimit int

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// Retry configures backoff for transient failures
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Redis:     redis,
		UserAgent: userAgent,
		RateLimit: 10,
		Timeout:   10 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new listing API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" || baseURL.Host == "" {
		return nil, fmt.Errorf("base url must be absolute http(s) (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %d)", cfg.RateLimit)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	logger := log.With().Str("component", "catalog-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     baseURL,
		rateLimiter: ratelimit.NewTracker(cfg.Redis, cfg.RateLimit, logger),
		config:      cfg,
		logger:      logger,
	}
	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// ListProducts fetches one offset/limit window of products.
func (c *Client) ListProducts(ctx context.Context, q Query) ([]Item, error) {
	if q.Offset < 0 || q.Limit <= 0 {
		return nil, fmt.Errorf("invalid window offset=%d limit=%d", q.Offset, q.Limit)
	}

	data, err := c.get(ctx, EndpointProducts, q.Values())
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	items, err := decodeProducts(data)
	if err != nil {
		c.evict(ctx, EndpointProducts, q.Values(), err)
		return nil, fmt.Errorf("list products: %w: %v", ErrMalformedResponse, err)
	}

	return items, nil
}

// ListCategories fetches every category.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	data, err := c.get(ctx, EndpointCategories, nil)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	categories, err := decodeCategories(data)
	if err != nil {
		c.evict(ctx, EndpointCategories, nil, err)
		return nil, fmt.Errorf("list categories: %w: %v", ErrMalformedResponse, err)
	}

	return categories, nil
}

// evict drops the cached body of a response that failed to decode so the next
// request goes upstream again.
func (c *Client) evict(ctx context.Context, endpoint string, query url.Values, decodeErr error) {
	catalogErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
	c.logger.Warn().Err(decodeErr).Str("endpoint", endpoint).Msg("Malformed response body")

	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(context.WithoutCancel(ctx), c.cacheKey(endpoint, query)); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to evict malformed response")
	}
}

// get returns the body of a successful GET. Identical concurrent requests
// share one upstream round trip. The shared call is detached from the caller
// that started it, so cancelling one caller never fails the others.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	key := c.cacheKey(endpoint, query)

	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout())
		defer cancel()

		req, err := http.NewRequestWithContext(sharedCtx, http.MethodGet, c.endpointURL(endpoint, query), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: classifyStatus(resp.StatusCode),
				Endpoint:   endpoint,
				Message:    resp.Status,
			}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			catalogErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return body, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			catalogSharedRequestsTotal.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// callTimeout bounds one shared call: every attempt plus the backoff between them.
func (c *Client) callTimeout() time.Duration {
	attempts := max(c.config.Retry.MaxAttempts, 1)
	return time.Duration(attempts)*c.config.Timeout + time.Duration(attempts-1)*c.config.Retry.MaxBackoff
}

// Do performs a GET request with throttling, caching, and retry.
// Non-retriable error statuses are returned as responses for the caller to handle.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := strings.TrimPrefix(req.URL.Path, c.baseURL.Path)

	startTime := time.Now()
	defer func() {
		catalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	cacheKey := c.cacheKey(endpoint, req.URL.Query())

	// Step 1: Serve fresh cache entries without touching the upstream
	var staleEntry *cache.CacheEntry
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().Str("endpoint", endpoint).Str("key", cacheKey.String()).Dur("age", entry.Age()).Msg("Cache hit")
			catalogRequestsTotal.WithLabelValues(endpoint, "cache").Inc()
			return cache.EntryToResponse(entry), nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}

		if stale, err := c.cache.GetStale(ctx, cacheKey); err == nil {
			staleEntry = stale
		}
	}

	// Step 2: Revalidate stale entries conditionally
	if staleEntry != nil && cache.ShouldMakeConditionalRequest(staleEntry) {
		cache.AddConditionalHeaders(req, staleEntry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", staleEntry.ETag).
			Msg("Making conditional request")
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", req.URL.RawQuery).
		Msg("Executing listing API request")

	// Step 3: Execute with retry. Every attempt passes the shared request
	// budget, so a back-off stored by a 429 holds for the next attempt too.
	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.config.Retry, func() error {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			return fmt.Errorf("%w: %w", errThrottleCheck, err)
		}
		if !allowed {
			c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by rate limiter")
			catalogRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return ratelimit.ErrBlocked
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			catalogErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			catalogRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			resp = nil
			return reqErr
		}

		if err := c.rateLimiter.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record upstream back-off")
		}

		catalogRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		errClass := classifyStatus(resp.StatusCode)
		if errClass == "" {
			return nil
		}

		catalogErrorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Listing API request error")

		if !shouldRetry(errClass) {
			// Let the caller handle the status
			return nil
		}

		resp.Body.Close()
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Endpoint:   endpoint,
			Message:    resp.Status,
		}
	}, classifyError)
	if retryErr != nil {
		return nil, retryErr
	}

	// Step 4: 304 Not Modified refreshes the stale entry
	if resp.StatusCode == http.StatusNotModified && staleEntry != nil {
		resp.Body.Close()
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")

		fresh := cache.EntryToResponse(staleEntry)
		revalidated, err := cache.ResponseToEntry(&http.Response{
			StatusCode: staleEntry.StatusCode,
			Header:     resp.Header,
			Body:       io.NopCloser(strings.NewReader("")),
		})
		if err == nil {
			if err := c.cache.UpdateTTL(ctx, cacheKey, revalidated.Expires); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
			}
		}
		return fresh, nil
	}

	// Step 5: Store successful responses
	if resp.StatusCode == http.StatusOK && c.cache != nil {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			// ResponseToEntry consumed the body; a read failure is a transport failure.
			catalogErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// errThrottleCheck wraps failures reading the shared request budget.
var errThrottleCheck = errors.New("rate limit check")

// classifyError categorizes a failed attempt for the retry loop.
func classifyError(err error) ErrorClass {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.ErrorClass
	case errors.Is(err, ratelimit.ErrBlocked), errors.Is(err, errThrottleCheck):
		return ErrorClassThrottle
	default:
		return ErrorClassNetwork
	}
}

func (c *Client) cacheKey(endpoint string, query url.Values) cache.CacheKey {
	return cache.CacheKey{
		Endpoint:    endpoint,
		QueryParams: query,
		Upstream:    c.baseURL.Host,
	}
}

func (c *Client) endpointURL(endpoint string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + endpoint
	u.RawQuery = query.Encode()
	return u.String()
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Ping checks the Redis connection when one is configured.
func (c *Client) Ping(ctx context.Context) error {
	if c.config.Redis == nil {
		return nil
	}
	return c.config.Redis.Ping(ctx).Err()
}

// Close releases the client's idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
