package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_hits_total",
			Help: "Total number of listing API cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_misses_total",
			Help: "Total number of listing API cache misses",
		},
	)

	// CacheStoredBytes tracks bytes written to the cache by layer
	CacheStoredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_stored_bytes_total",
			Help: "Total bytes written to the listing API cache",
		},
		[]string{"layer"},
	)

	// NotModifiedResponses tracks 304 Not Modified revalidations
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_304_responses_total",
			Help: "Total number of 304 Not Modified revalidations",
		},
	)

	// ConditionalRequestsSent tracks requests sent with If-None-Match or If-Modified-Since
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_conditional_requests_total",
			Help: "Total number of conditional requests sent upstream",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
