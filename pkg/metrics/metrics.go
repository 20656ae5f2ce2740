// Package metrics exposes the Prometheus registry shared by the CRM client.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, collection) to avoid circular dependencies; this package
// documents them and serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the CRM client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// List Controller Metrics (pkg/collection):
//   - crm_list_dispatches_total{entity, endpoint_kind} (Counter): Fetches dispatched, listing or search
//   - crm_list_stale_responses_total{entity} (Counter): Responses discarded because a newer request superseded them
//   - crm_list_errors_total{entity} (Counter): Fetches that ended in the error state
//
// Rate Limit Metrics (pkg/ratelimit):
//   - crm_rate_limit_remaining (Gauge): Requests remaining in the backend throttle window
//   - crm_rate_limit_blocks_total (Counter): Requests blocked while the window was exhausted
//   - crm_rate_limit_throttles_total (Counter): Requests paced while the window was low
//
// Cache Metrics (pkg/cache):
//   - crm_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - crm_cache_misses_total (Counter): Cache misses
//   - crm_cache_size_bytes{layer="redis"} (Gauge): Bytes written to the cache
//   - crm_304_responses_total (Counter): 304 Not Modified responses
//   - crm_conditional_requests_total (Counter): Conditional requests sent
//   - crm_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - crm_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - crm_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - crm_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - crm_retries_total{error_class} (Counter): Retry attempts by error class
//   - crm_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - crm_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Stub Server Metrics (internal/stub):
//   - crm_stub_requests_total{route, status} (Counter): Requests served by the stub backend
//
// Example Prometheus Queries:
//
//   # Share of list responses that arrived too late to be shown
//   sum(rate(crm_list_stale_responses_total[5m])) /
//   sum(rate(crm_list_dispatches_total[5m]))
//
//   # Search vs listing traffic
//   sum by (endpoint_kind) (rate(crm_list_dispatches_total[5m]))
//
//   # Cache Hit Rate
//   sum(rate(crm_cache_hits_total[5m])) /
//   (sum(rate(crm_cache_hits_total[5m])) + sum(rate(crm_cache_misses_total[5m])))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(crm_request_duration_seconds_bucket[5m]))
