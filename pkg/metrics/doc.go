// Package metrics provides Prometheus-compatible metrics for dserver.
//
// This package implements the Prometheus text exposition format
// (text/plain; version=0.0.4) on the standard library.
//
// Supported metric types:
//   - Counter: monotonically increasing value (e.g., request counts)
//   - Gauge: value that can go up or down (e.g., open connections)
//   - Histogram: distribution of values with configurable buckets (e.g., latencies)
//
// All metrics are thread-safe and can be updated from multiple goroutines.
//
// # Default Metrics
//
// Init registers the metrics the server maintains:
//
//   - dserver_requests_total: requests by verb and result (ok, token, bad)
//   - dserver_request_duration_seconds: request latency by verb
//   - dserver_connections_active: open connections by transport
//   - dserver_sources: configured sources by type
//   - dserver_flushes_total: flushes by result (ok, error)
//   - dserver_uptime_seconds and Go runtime gauges
//
// The helper functions (ObserveRequest, ConnectionOpened, ...) are no-ops
// until Init has been called, so packages can record unconditionally.
//
// # Usage
//
//	registry := metrics.Init()
//	mux.Handle("/metrics", registry.Handler())
package metrics
