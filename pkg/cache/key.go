package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "storefront"

// CacheKey represents a unique identifier for a cached listing API response.
type CacheKey struct {
	// Endpoint is the API path relative to the base URL (e.g., "/products")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"offset": "0", "limit": "12"})
	QueryParams url.Values

	// Upstream distinguishes API base URLs sharing one Redis (empty for the default)
	Upstream string
}

// String generates a deterministic cache key string.
// Format: storefront[:upstream]:endpoint:query1=val1:query2=val2
//
// Example:
//
//	storefront:products:categoryId=2:limit=12:offset=0
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.Upstream != "" {
		parts = append(parts, k.Upstream)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Query params sorted for determinism; repeated values are kept in order.
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
