// Package metrics exposes the Prometheus metrics of the pager.
// All metrics are defined in their respective packages (pagination, client,
// cache, ratelimit) and registered via promauto; importing this package makes
// sure all of them are linked into the binary serving Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/Sternrassler/timeseries-pager/pkg/cache"
	_ "github.com/Sternrassler/timeseries-pager/pkg/client"
	_ "github.com/Sternrassler/timeseries-pager/pkg/pagination"
	_ "github.com/Sternrassler/timeseries-pager/pkg/ratelimit"
)

// Registry is the Prometheus registry all pager metrics register with.
var Registry = prometheus.DefaultRegisterer

// Handler serves the pager metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Pagination Metrics (pkg/pagination):
//   - pager_pages_fetched_total{state} (Counter): Backend pages by reported state
//   - pager_fetch_duration_seconds (Histogram): Latency of a single page fetch
//   - pager_runs_total{outcome} (Counter): Runs by outcome (done, error, failed, cancelled)
//   - pager_continuation_targets_total (Counter): Targets re-queried with a cursor
//
// Cache Metrics (pkg/cache):
//   - pager_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - pager_cache_misses_total (Counter): Cache misses
//   - pager_cache_size_bytes{layer} (Gauge): Bytes of results written by layer
//   - pager_cache_entries{layer} (Gauge): Entries held in memory
//   - pager_cache_errors_total{operation} (Counter): Cache operation errors
//   - pager_cache_plans_total{kind} (Counter): Section plans (miss, start, end, complete)
//
// Request Metrics (pkg/client):
//   - pager_client_requests_total{status} (Counter): Backend requests by HTTP status
//   - pager_client_request_duration_seconds (Histogram): Backend request duration
//   - pager_client_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - pager_client_retries_total{error_class} (Counter): Retry attempts by error class
//   - pager_client_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - pager_client_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pager_rate_limit_remaining (Gauge): Requests remaining in the backend window
//   - pager_rate_limit_blocks_total (Counter): Requests held back by a Retry-After
//   - pager_rate_limit_throttles_total (Counter): Requests throttled due to a low budget
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(pager_cache_hits_total[5m])) /
//   (sum(rate(pager_cache_hits_total[5m])) + sum(rate(pager_cache_misses_total[5m])))
//
//   # Pages per Run
//   rate(pager_pages_fetched_total[5m]) / rate(pager_runs_total[5m])
//
//   # Failed Runs
//   rate(pager_runs_total{outcome="failed"}[5m])
//
//   # P95 Page Latency
//   histogram_quantile(0.95, rate(pager_fetch_duration_seconds_bucket[5m]))
