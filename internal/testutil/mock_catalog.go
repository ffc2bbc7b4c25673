// Package testutil provides testing utilities for the storefront.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// APIPrefix is the path prefix the mock serves, matching the public API layout.
const APIPrefix = "/api/v1"

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Product is a product record in the listing API wire format.
type Product struct {
	ID       int           `json:"id"`
	Title    string        `json:"title"`
	Price    float64       `json:"price"`
	Images   []string      `json:"images"`
	Category CategoryEntry `json:"category"`
}

// CategoryEntry is a category record in the listing API wire format.
type CategoryEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Window is one offset/limit request seen by the mock.
type Window struct {
	Offset     int
	Limit      int
	CategoryID int
}

// MockCatalog is a configurable mock of the listing API for testing.
// By default it serves its fixture products and categories with offset/limit
// and categoryId filtering, ETags and 304 revalidation.
type MockCatalog struct {
	server *httptest.Server

	mu         sync.RWMutex
	handlers   map[string]func(w http.ResponseWriter, r *http.Request)
	products   []Product
	categories []CategoryEntry
	failNext   int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	ProductWindows    []Window
	LastRequestHeader http.Header
}

// NewMockCatalog creates a mock serving the given fixtures.
func NewMockCatalog(categories []CategoryEntry, products []Product) *MockCatalog {
	mock := &MockCatalog{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		products:   products,
		categories: categories,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		fail := mock.failNext > 0
		if fail {
			mock.failNext--
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		if exists {
			handler(w, r)
			return
		}

		switch r.URL.Path {
		case APIPrefix + "/products":
			mock.productsHandler(w, r)
		case APIPrefix + "/categories":
			mock.writeJSON(w, r, mock.categories)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	return mock
}

// NewDefaultMockCatalog creates a mock with FixtureCategories and perCategory
// products in each category except Miscellaneous, which stays empty.
func NewDefaultMockCatalog(perCategory int) *MockCatalog {
	categories := FixtureCategories()
	return NewMockCatalog(categories, FixtureProducts(categories[:len(categories)-1], perCategory))
}

// FixtureCategories returns the categories of the public demo API.
func FixtureCategories() []CategoryEntry {
	return []CategoryEntry{
		{ID: 1, Name: "Clothes"},
		{ID: 2, Name: "Electronics"},
		{ID: 3, Name: "Furniture"},
		{ID: 4, Name: "Shoes"},
		{ID: 5, Name: "Miscellaneous"},
	}
}

// FixtureProducts generates perCategory products for each category, interleaved by category.
func FixtureProducts(categories []CategoryEntry, perCategory int) []Product {
	products := make([]Product, 0, len(categories)*perCategory)
	id := 1
	for i := 0; i < perCategory; i++ {
		for _, c := range categories {
			products = append(products, Product{
				ID:       id,
				Title:    fmt.Sprintf("%s item %d", c.Name, i+1),
				Price:    float64(10 + id),
				Images:   []string{fmt.Sprintf("https://i.imgur.com/%d.jpeg", id)},
				Category: c,
			})
			id++
		}
	}
	return products
}

// BaseURL returns the API base URL to configure the catalog client with.
func (m *MockCatalog) BaseURL() string {
	return m.server.URL + APIPrefix
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.ProductWindows = nil
	m.LastRequestHeader = nil
}

// FailNext makes the next n requests answer 503.
func (m *MockCatalog) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// SetHandler sets a custom handler for a path below APIPrefix, e.g. "/products".
func (m *MockCatalog) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[APIPrefix+path] = handler
}

// SetResponse configures a canned response for a path below APIPrefix.
func (m *MockCatalog) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockCatalog) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetProductWindows returns the product windows requested so far.
func (m *MockCatalog) GetProductWindows() []Window {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Window(nil), m.ProductWindows...)
}

func (m *MockCatalog) productsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = len(m.products)
	}
	categoryID, _ := strconv.Atoi(q.Get("categoryId"))

	m.mu.Lock()
	m.ProductWindows = append(m.ProductWindows, Window{Offset: offset, Limit: limit, CategoryID: categoryID})
	m.mu.Unlock()

	if categoryID > 0 && !m.hasCategory(categoryID) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "category not found"}`))
		return
	}

	filtered := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		if categoryID == 0 || p.Category.ID == categoryID {
			filtered = append(filtered, p)
		}
	}

	page := []Product{}
	if offset < len(filtered) {
		page = filtered[offset:min(offset+limit, len(filtered))]
	}
	m.writeJSON(w, r, page)
}

func (m *MockCatalog) hasCategory(id int) bool {
	for _, c := range m.categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// writeJSON answers with body, an ETag derived from it, and 304 when the client already has it.
func (m *MockCatalog) writeJSON(w http.ResponseWriter, r *http.Request, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h := fnv.New32a()
	h.Write(data)
	etag := fmt.Sprintf(`"%x"`, h.Sum32())

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "max-age=300")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Too many requests"}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not a JSON array.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"products": "nope"`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
