// Package cache stores list responses in Redis so repeated page views and
// back-navigation do not hit the CRM backend again while a response is fresh.
//
// Entries are keyed by endpoint, sorted query parameters and an optional
// principal (so two staff accounts never share cached rows):
//
//	key := cache.Key{
//		Endpoint:  "/customers/filter",
//		Query:     url.Values{"q": {"ahmed"}, "page": {"1"}, "per_page": {"15"}},
//		Principal: "staff-42",
//	}
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the backend
//	}
//
// Freshness comes from the Expires header or Cache-Control max-age, falling
// back to DefaultTTL. When an entry carries an ETag or Last-Modified value the
// client revalidates it with a conditional request and serves the cached body
// on 304 Not Modified.
//
// # Metrics
//
//   - crm_cache_hits_total{layer="redis"}
//   - crm_cache_misses_total
//   - crm_cache_size_bytes{layer="redis"}
//   - crm_304_responses_total
//   - crm_conditional_requests_total
//   - crm_cache_errors_total{operation}
package cache
