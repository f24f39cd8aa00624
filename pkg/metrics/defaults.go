package metrics

import (
	"sync"
	"time"
)

// Request result label values.
const (
	ResultOK    = "ok"
	ResultToken = "token"
	ResultBad   = "bad"
	ResultError = "error"
)

var (
	// RequestsTotal counts dispatched requests.
	// Labels: verb, result (ok, token, bad)
	RequestsTotal *Counter

	// RequestDuration tracks dispatch latency in seconds.
	// Labels: verb
	RequestDuration *Histogram

	// ConnectionsActive tracks open client connections.
	// Labels: transport (tcp, http, websocket)
	ConnectionsActive *Gauge

	// Sources is the number of configured sources.
	// Labels: type
	Sources *Gauge

	// FlushesTotal counts source flushes.
	// Labels: result (ok, error)
	FlushesTotal *Counter

	// UptimeSeconds is the server uptime.
	UptimeSeconds *Gauge

	// RuntimeCollectorInstance is the Go runtime metrics collector.
	RuntimeCollectorInstance *RuntimeCollector

	runtimeCollectorStop func()
	defaultRegistry      *Registry
	initOnce             sync.Once
)

// Init initializes the default metrics and returns the registry.
// This function is idempotent and safe to call multiple times.
func Init() *Registry {
	initOnce.Do(func() {
		defaultRegistry = NewRegistry()

		RequestsTotal = defaultRegistry.NewCounter(
			"dserver_requests_total",
			"Total number of protocol requests",
			"verb", "result",
		)
		RequestDuration = defaultRegistry.NewHistogram(
			"dserver_request_duration_seconds",
			"Duration of protocol requests in seconds",
			DefaultBuckets,
			"verb",
		)
		ConnectionsActive = defaultRegistry.NewGauge(
			"dserver_connections_active",
			"Number of open client connections",
			"transport",
		)
		Sources = defaultRegistry.NewGauge(
			"dserver_sources",
			"Number of configured data sources",
			"type",
		)
		FlushesTotal = defaultRegistry.NewCounter(
			"dserver_flushes_total",
			"Total number of source flushes",
			"result",
		)
		UptimeSeconds = defaultRegistry.NewGauge(
			"dserver_uptime_seconds",
			"Server uptime in seconds",
		)

		RuntimeCollectorInstance = NewRuntimeCollector(defaultRegistry, UptimeSeconds)
		runtimeCollectorStop = RuntimeCollectorInstance.StartCollector(10 * time.Second)
	})

	return defaultRegistry
}

// DefaultRegistry returns the default metrics registry.
// Returns nil if Init() has not been called.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Reset discards the default metrics so that Init can run again.
// Intended for tests.
func Reset() {
	if runtimeCollectorStop != nil {
		runtimeCollectorStop()
		runtimeCollectorStop = nil
	}

	initOnce = sync.Once{}
	defaultRegistry = nil
	RequestsTotal = nil
	RequestDuration = nil
	ConnectionsActive = nil
	Sources = nil
	FlushesTotal = nil
	UptimeSeconds = nil
	RuntimeCollectorInstance = nil
}

// ObserveRequest records one dispatched request.
func ObserveRequest(verb, result string, d time.Duration) {
	if RequestsTotal == nil {
		return
	}
	if vec, err := RequestsTotal.WithLabels(verb, result); err == nil {
		_ = vec.Inc()
	}
	if vec, err := RequestDuration.WithLabels(verb); err == nil {
		vec.Observe(d.Seconds())
	}
}

// ConnectionOpened increments the open connection gauge for transport.
func ConnectionOpened(transport string) {
	if ConnectionsActive == nil {
		return
	}
	if vec, err := ConnectionsActive.WithLabels(transport); err == nil {
		vec.Inc()
	}
}

// ConnectionClosed decrements the open connection gauge for transport.
func ConnectionClosed(transport string) {
	if ConnectionsActive == nil {
		return
	}
	if vec, err := ConnectionsActive.WithLabels(transport); err == nil {
		vec.Dec()
	}
}

// SetSources records the number of sources of a type.
func SetSources(typ string, n int) {
	if Sources == nil {
		return
	}
	if vec, err := Sources.WithLabels(typ); err == nil {
		vec.Set(float64(n))
	}
}

// ObserveFlush records the outcome of one source flush.
func ObserveFlush(err error) {
	if FlushesTotal == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	if vec, verr := FlushesTotal.WithLabels(result); verr == nil {
		_ = vec.Inc()
	}
}
