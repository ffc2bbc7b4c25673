package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/storefront/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   13, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// newTestClient builds a client against server with short retry backoff.
func newTestClient(t *testing.T, server *httptest.Server, redisClient *redis.Client) *Client {
	t.Helper()

	cfg := DefaultConfig(redisClient, "StorefrontTest/1.0")
	cfg.BaseURL = server.URL + "/api/v1"
	cfg.RateLimit = 0
	cfg.Retry = fastRetry()

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

const productsJSON = `[
	{"id": 1, "title": "Shirt", "price": 20, "images": ["[\"https://i.imgur.com/a.jpeg\"", "https://i.imgur.com/b.jpeg"], "category": {"id": 1, "name": "Clothes"}},
	{"id": 2, "title": "Laptop", "price": 999.5, "image": "https://i.imgur.com/c.jpeg", "category": {"id": 2, "name": "Electronics"}},
	{"id": 3, "title": "Chair", "price": 45, "images": [], "category": {"id": 3, "name": "Furniture"}}
]`

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "nil redis is allowed",
			mutate:      func(c *Config) { c.Redis = nil },
			expectError: false,
		},
		{
			name:        "empty base url",
			mutate:      func(c *Config) { c.BaseURL = "" },
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "relative base url",
			mutate:      func(c *Config) { c.BaseURL = "/api/v1" },
			expectError: true,
			errorMsg:    "base url must be absolute",
		},
		{
			name:        "empty user agent",
			mutate:      func(c *Config) { c.UserAgent = "" },
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "negative rate limit",
			mutate:      func(c *Config) { c.RateLimit = -1 },
			expectError: true,
			errorMsg:    "rate_limit must be >= 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(nil, "StorefrontTest/1.0")
			tt.mutate(&cfg)

			client, err := New(cfg)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Error = %q, want it to contain %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("Expected client, got nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(nil, "StorefrontTest/1.0")

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.UserAgent != "StorefrontTest/1.0" {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.RateLimit != 10 {
		t.Errorf("RateLimit = %d, want 10", cfg.RateLimit)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
	if cfg.Retry != DefaultRetryConfig() {
		t.Errorf("Retry = %+v, want defaults", cfg.Retry)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"api server error", &APIError{StatusCode: 503, ErrorClass: ErrorClassServer}, ErrorClassServer},
		{"api rate limit", &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit}, ErrorClassRateLimit},
		{"transport error", errors.New("connection refused"), ErrorClassNetwork},
		{"shared back-off", ratelimit.ErrBlocked, ErrorClassThrottle},
		{"throttle state unreadable", fmt.Errorf("%w: %w", errThrottleCheck, errors.New("redis down")), ErrorClassThrottle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDo_UserAgentSet(t *testing.T) {
	userAgentReceived := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgentReceived = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	req, _ := http.NewRequest("GET", server.URL+"/api/v1/products", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	resp.Body.Close()

	if userAgentReceived != "StorefrontTest/1.0" {
		t.Errorf("User-Agent = %q, want %q", userAgentReceived, "StorefrontTest/1.0")
	}
}

func TestListProducts_QueryParameters(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"first page all categories", Query{Offset: 0, Limit: 12}, "limit=12&offset=0"},
		{"second page", Query{Offset: 12, Limit: 12}, "limit=12&offset=12"},
		{"category filter", Query{Offset: 0, Limit: 12, CategoryID: 2}, "categoryId=2&limit=12&offset=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotQuery string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotQuery = r.URL.Query().Encode()
				w.Write([]byte(`[]`))
			}))
			defer server.Close()

			client := newTestClient(t, server, nil)
			if _, err := client.ListProducts(context.Background(), tt.query); err != nil {
				t.Fatalf("ListProducts() failed: %v", err)
			}

			if gotPath != "/api/v1/products" {
				t.Errorf("path = %q, want /api/v1/products", gotPath)
			}
			if gotQuery != tt.want {
				t.Errorf("query = %q, want %q", gotQuery, tt.want)
			}
		})
	}
}

func TestListProducts_InvalidWindow(t *testing.T) {
	client, err := New(DefaultConfig(nil, "StorefrontTest/1.0"))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := client.ListProducts(context.Background(), Query{Offset: -1, Limit: 12}); err == nil {
		t.Error("Expected error for negative offset")
	}
	if _, err := client.ListProducts(context.Background(), Query{Offset: 0, Limit: 0}); err == nil {
		t.Error("Expected error for zero limit")
	}
}

func TestListProducts_DecodesItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(productsJSON))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	items, err := client.ListProducts(context.Background(), Query{Offset: 0, Limit: 3})
	if err != nil {
		t.Fatalf("ListProducts() failed: %v", err)
	}

	want := []Item{
		{ID: 1, Title: "Shirt", Price: 20, CategoryName: "Clothes", ImageURL: "https://i.imgur.com/a.jpeg"},
		{ID: 2, Title: "Laptop", Price: 999.5, CategoryName: "Electronics", ImageURL: "https://i.imgur.com/c.jpeg"},
		{ID: 3, Title: "Chair", Price: 45, CategoryName: "Furniture"},
	}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("item %d = %+v, want %+v", i, items[i], want[i])
		}
	}
}

func TestListProducts_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	_, err := client.ListProducts(context.Background(), Query{Offset: 0, Limit: 12})

	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Expected ErrMalformedResponse, got %v", err)
	}
	if IsStatusError(err) {
		t.Error("Malformed body should not be a status error")
	}
}

func TestListProducts_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	_, err := client.ListProducts(context.Background(), Query{Offset: 0, Limit: 12, CategoryID: 99})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %v, want %v", apiErr.ErrorClass, ErrorClassClient)
	}
	if apiErr.Endpoint != EndpointProducts {
		t.Errorf("Endpoint = %q, want %q", apiErr.Endpoint, EndpointProducts)
	}
}

func TestListCategories(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/categories" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`[{"id": 1, "name": "Clothes"}, {"id": 2, "name": "Electronics"}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	categories, err := client.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories() failed: %v", err)
	}

	if len(categories) != 2 {
		t.Fatalf("got %d categories, want 2", len(categories))
	}
	if categories[1] != (Category{ID: 2, Name: "Electronics"}) {
		t.Errorf("categories[1] = %+v", categories[1])
	}
}

func TestProducts_FetchPage(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(productsJSON))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	source := client.Products(2)
	if source.CategoryID() != 2 {
		t.Errorf("CategoryID() = %d, want 2", source.CategoryID())
	}

	items, err := source.FetchPage(context.Background(), 24, 12)
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("got %d items, want 3", len(items))
	}
	if gotQuery != "categoryId=2&limit=12&offset=24" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestListProducts_SharesInFlightRequest(t *testing.T) {
	var requestCount int32
	arrived := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		once.Do(func() { close(arrived) })
		<-release
		w.Write([]byte(productsJSON))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.ListProducts(context.Background(), Query{Offset: 0, Limit: 12})
			errs <- err
		}()
	}

	<-arrived
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("ListProducts() failed: %v", err)
		}
	}
	if got := atomic.LoadInt32(&requestCount); got != 1 {
		t.Errorf("upstream requests = %d, want 1", got)
	}
}

func TestListProducts_DetachedCallerSurvivesCancelledLeader(t *testing.T) {
	var requestCount int32
	arrived := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		once.Do(func() { close(arrived) })
		<-release
		w.Write([]byte(productsJSON))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	q := Query{Offset: 12, Limit: 12}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := client.ListProducts(leaderCtx, q)
		leaderErr <- err
	}()
	<-arrived

	type result struct {
		items []Item
		err   error
	}
	follower := make(chan result, 1)
	go func() {
		items, err := client.ListProducts(context.WithoutCancel(context.Background()), q)
		follower <- result{items, err}
	}()
	// Give the follower time to join the in-flight request
	time.Sleep(100 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("leader error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled leader did not return")
	}

	close(release)
	select {
	case res := <-follower:
		if res.err != nil {
			t.Fatalf("detached caller failed: %v", res.err)
		}
		if len(res.items) != 3 {
			t.Errorf("got %d items, want 3", len(res.items))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("detached caller did not return")
	}

	if got := atomic.LoadInt32(&requestCount); got != 1 {
		t.Errorf("upstream requests = %d, want 1", got)
	}
}

func TestListProducts_MalformedBodyIsNotCached(t *testing.T) {
	redisClient := setupTestRedis(t)

	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=300")
		if atomic.AddInt32(&requestCount, 1) == 1 {
			w.Write([]byte(`<html>oops`))
			return
		}
		w.Write([]byte(productsJSON))
	}))
	defer server.Close()

	client := newTestClient(t, server, redisClient)
	ctx := context.Background()
	q := Query{Offset: 0, Limit: 12}

	if _, err := client.ListProducts(ctx, q); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("first request: got %v, want ErrMalformedResponse", err)
	}

	for i := 0; i < 2; i++ {
		items, err := client.ListProducts(ctx, q)
		if err != nil {
			t.Fatalf("request %d after malformed body failed: %v", i+2, err)
		}
		if len(items) != 3 {
			t.Errorf("request %d: got %d items, want 3", i+2, len(items))
		}
	}

	// The good body is cached; the malformed one was not
	if got := atomic.LoadInt32(&requestCount); got != 2 {
		t.Errorf("upstream requests = %d, want 2", got)
	}
}

func TestDo_RetryOnServerError(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	req, _ := http.NewRequest("GET", server.URL+"/api/v1/products", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 after retry, got %d", resp.StatusCode)
	}
	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts (2 retries), got %d", attemptCount)
	}
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	req, _ := http.NewRequest("GET", server.URL+"/api/v1/products", nil)
	resp, err := client.Do(req)

	// Should not error out, but return the 404 response
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
	if attemptCount != 1 {
		t.Errorf("Expected 1 attempt (no retry for 4xx), got %d", attemptCount)
	}
}

func TestDo_RetryOnRateLimit(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	req, _ := http.NewRequest("GET", server.URL+"/api/v1/products", nil)

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 after retry, got %d", resp.StatusCode)
	}
	if attemptCount != 2 {
		t.Errorf("Expected 2 attempts (1 retry), got %d", attemptCount)
	}
	// Rate limited retries start from 4x the initial backoff (40ms, -20% jitter)
	if duration < 30*time.Millisecond {
		t.Errorf("Expected rate limit backoff, got %v", duration)
	}
}

func TestDo_RetryExhausted(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)

	_, err := client.ListProducts(context.Background(), Query{Offset: 0, Limit: 12})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !IsStatusError(err) {
		t.Errorf("Expected the last status error to stay reachable, got %v", err)
	}
	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts, got %d", attemptCount)
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(t, server, nil)
	server.Close()

	_, err := client.ListProducts(context.Background(), Query{Offset: 0, Limit: 12})

	if err == nil {
		t.Fatal("Expected error for closed server")
	}
	if IsStatusError(err) {
		t.Errorf("Transport failure should not be a status error: %v", err)
	}
}

func TestDo_CacheHit(t *testing.T) {
	redisClient := setupTestRedis(t)

	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.Header().Set("Cache-Control", "max-age=300")
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(productsJSON))
	}))
	defer server.Close()

	client := newTestClient(t, server, redisClient)
	ctx := context.Background()

	first, err := client.ListProducts(ctx, Query{Offset: 0, Limit: 12})
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}

	req, _ := http.NewRequest("GET", server.URL+"/api/v1/products?offset=0&limit=12", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Cache") != "HIT" {
		t.Errorf("X-Cache = %q, want HIT", resp.Header.Get("X-Cache"))
	}

	second, err := client.ListProducts(ctx, Query{Offset: 0, Limit: 12})
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}

	if requestCount != 1 {
		t.Errorf("upstream requests = %d, want 1", requestCount)
	}
	if len(first) != len(second) {
		t.Errorf("cached result has %d items, want %d", len(second), len(first))
	}
}

func TestDo_Handle304NotModified(t *testing.T) {
	redisClient := setupTestRedis(t)

	requestCount := 0
	conditionalSeen := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if r.Header.Get("If-None-Match") == `"abc123"` {
			conditionalSeen = true
			w.Header().Set("Cache-Control", "max-age=300")
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Cache-Control", "max-age=1")
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(productsJSON))
	}))
	defer server.Close()

	client := newTestClient(t, server, redisClient)
	ctx := context.Background()

	if _, err := client.ListProducts(ctx, Query{Offset: 0, Limit: 12}); err != nil {
		t.Fatalf("First request failed: %v", err)
	}

	// Let the entry go stale
	time.Sleep(1100 * time.Millisecond)

	items, err := client.ListProducts(ctx, Query{Offset: 0, Limit: 12})
	if err != nil {
		t.Fatalf("Revalidated request failed: %v", err)
	}
	if !conditionalSeen {
		t.Error("Expected a conditional request with If-None-Match")
	}
	if len(items) != 3 {
		t.Errorf("got %d items from revalidated entry, want 3", len(items))
	}

	// Revalidation refreshed the entry
	if _, err := client.ListProducts(ctx, Query{Offset: 0, Limit: 12}); err != nil {
		t.Fatalf("Third request failed: %v", err)
	}
	if requestCount != 2 {
		t.Errorf("upstream requests = %d, want 2", requestCount)
	}
}

func TestDo_RateLimitBlock(t *testing.T) {
	redisClient := setupTestRedis(t)

	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	// Simulate a back-off recorded by another instance
	until := time.Now().Add(time.Minute).UnixMilli()
	redisClient.Set(context.Background(), ratelimit.RedisKeyBlockedUntil, strconv.FormatInt(until, 10), time.Minute)

	client := newTestClient(t, server, redisClient)
	_, err := client.ListProducts(context.Background(), Query{Offset: 0, Limit: 12})

	if !errors.Is(err, ratelimit.ErrBlocked) {
		t.Errorf("Expected ratelimit.ErrBlocked, got %v", err)
	}
	if requestCount != 0 {
		t.Errorf("upstream requests = %d, want 0", requestCount)
	}
}

func TestDo_RateLimitBlockStoredByRetriedAttempt(t *testing.T) {
	redisClient := setupTestRedis(t)

	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server, redisClient)
	_, err := client.ListProducts(context.Background(), Query{Offset: 0, Limit: 12})

	if !errors.Is(err, ratelimit.ErrBlocked) {
		t.Errorf("Expected ratelimit.ErrBlocked, got %v", err)
	}
	if got := atomic.LoadInt32(&requestCount); got != 1 {
		t.Errorf("upstream requests = %d, want 1 (retry must honour the stored back-off)", got)
	}
}

func TestClient_BaseURL(t *testing.T) {
	cfg := DefaultConfig(nil, "StorefrontTest/1.0")
	cfg.BaseURL = "https://api.example.com/api/v1/"

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if got := client.BaseURL(); got != "https://api.example.com/api/v1" {
		t.Errorf("BaseURL() = %q", got)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping() without redis = %v, want nil", err)
	}
}
