// Package metrics exposes the storefront's Prometheus metrics.
// Collectors are defined with promauto in their own packages (catalog, cache,
// ratelimit, loader, web) to avoid circular dependencies; this package serves
// them and documents what exists.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the storefront.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves all registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Loader Metrics (pkg/loader):
//   - storefront_loader_triggers_total{outcome} (Counter): Visibility triggers by outcome (ignored, loaded, failed)
//   - storefront_loader_fetch_duration_seconds (Histogram): Page fetch duration
//
// Request Metrics (pkg/catalog):
//   - storefront_catalog_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status ("cache" for hits)
//   - storefront_catalog_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - storefront_catalog_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//   - storefront_catalog_shared_requests_total (Counter): Requests answered by an identical in-flight request
//
// Retry Metrics (pkg/catalog):
//   - storefront_catalog_retries_total{error_class} (Counter): Retry attempts by error class
//   - storefront_catalog_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - storefront_catalog_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - storefront_cache_misses_total (Counter): Cache misses
//   - storefront_cache_stored_bytes_total{layer="redis"} (Counter): Bytes written to the cache
//   - storefront_cache_304_responses_total (Counter): 304 Not Modified responses
//   - storefront_cache_conditional_requests_total (Counter): Conditional requests sent
//   - storefront_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - storefront_ratelimit_window_requests (Gauge): Requests counted in the current one-second window
//   - storefront_ratelimit_blocks_total (Counter): Requests refused during an upstream back-off
//   - storefront_ratelimit_throttles_total (Counter): Requests delayed to the next window
//
// Web Metrics (internal/web):
//   - storefront_http_requests_total{route, status} (Counter): Requests served by route
//   - storefront_views_active (Gauge): Live infinite-scroll views
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(storefront_cache_hits_total[5m])) /
//   (sum(rate(storefront_cache_hits_total[5m])) + sum(rate(storefront_cache_misses_total[5m])))
//
//   # Share of ignored scroll triggers
//   rate(storefront_loader_triggers_total{outcome="ignored"}[5m]) / rate(storefront_loader_triggers_total[5m])
//
//   # Failed page loads
//   rate(storefront_loader_triggers_total{outcome="failed"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(storefront_catalog_request_duration_seconds_bucket[5m]))
