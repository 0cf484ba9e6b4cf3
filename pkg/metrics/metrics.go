// Package metrics provides the centralized Prometheus metrics registry
// for the Canvas client. Metrics are defined in their respective packages
// (canvas, dispatch, cache, pagination) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the Canvas client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Client Metrics (pkg/canvas):
//   - canvas_requests_total{method,status} (Counter): Requests by method and status
//   - canvas_request_duration_seconds{method} (Histogram): Request duration
//   - canvas_errors_total{kind} (Counter): Errors by taxonomy kind
//     (response, request, timeout, rate_limit)
//
// Dispatcher Metrics (pkg/dispatch):
//   - canvas_dispatch_queue_depth (Gauge): Requests waiting in the queue
//   - canvas_rate_limit_retries_total (Counter): Rate-limited requests requeued
//   - canvas_rate_limit_exhausted_total (Counter): Requests dropped at the retry ceiling
//   - canvas_dispatch_delay_seconds (Histogram): Backoff delay before dequeue
//
// Cache Metrics (pkg/cache):
//   - canvas_cache_hits_total (Counter): Response cache hits
//   - canvas_cache_misses_total (Counter): Response cache misses
//   - canvas_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pagination Metrics (pkg/pagination):
//   - canvas_pages_fetched_total (Counter): Pages fetched
//   - canvas_items_yielded_total (Counter): Items yielded
