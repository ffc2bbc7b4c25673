// Package cache stores listing API responses in Redis.
//
// Product lists are revalidated once an hour by default (DefaultTTL).
// Cache-Control max-age or Expires from the upstream take precedence.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "/products",
//		QueryParams: url.Values{"offset": {"0"}, "limit": {"12"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the listing API, then:
//		entry, _ = cache.ResponseToEntry(resp)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// a 304 answer refreshes the entry with Manager.UpdateTTL
//	}
//
// # Metrics
//
//   - storefront_cache_hits_total{layer="redis"}
//   - storefront_cache_misses_total
//   - storefront_cache_stored_bytes_total{layer="redis"}
//   - storefront_cache_304_responses_total
//   - storefront_cache_conditional_requests_total
//   - storefront_cache_errors_total{operation}
package cache
