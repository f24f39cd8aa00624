package metrics

import (
	"runtime"
	"time"
)

// RuntimeCollector collects Go runtime metrics.
type RuntimeCollector struct {
	goroutines  *Gauge
	heapAlloc   *Gauge
	heapObjects *Gauge
	gcPause     *Gauge
	numGC       *Gauge
	goInfo      *Gauge

	uptime    *Gauge
	startTime time.Time
}

// NewRuntimeCollector registers the runtime gauges on r. uptimeGauge is
// updated on every collection.
func NewRuntimeCollector(r *Registry, uptimeGauge *Gauge) *RuntimeCollector {
	rc := &RuntimeCollector{
		startTime: time.Now(),
		uptime:    uptimeGauge,

		goroutines:  r.NewGauge("go_goroutines", "Number of goroutines that currently exist"),
		heapAlloc:   r.NewGauge("go_memstats_heap_alloc_bytes", "Number of heap bytes allocated and still in use"),
		heapObjects: r.NewGauge("go_memstats_heap_objects", "Number of allocated heap objects"),
		gcPause:     r.NewGauge("go_gc_duration_seconds", "Total GC pause duration in seconds"),
		numGC:       r.NewGauge("go_gc_cycles_total", "Total number of completed GC cycles"),
		goInfo:      r.NewGauge("go_info", "Information about the Go environment", "version"),
	}

	if vec, err := rc.goInfo.WithLabels(runtime.Version()); err == nil {
		vec.Set(1)
	}
	return rc
}

// Collect updates all runtime metrics with current values.
func (rc *RuntimeCollector) Collect() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	_ = rc.uptime.Set(time.Since(rc.startTime).Seconds())
	_ = rc.goroutines.Set(float64(runtime.NumGoroutine()))
	_ = rc.heapAlloc.Set(float64(mem.HeapAlloc))
	_ = rc.heapObjects.Set(float64(mem.HeapObjects))
	_ = rc.gcPause.Set(float64(mem.PauseTotalNs) / 1e9)
	_ = rc.numGC.Set(float64(mem.NumGC))
}

// StartCollector starts a goroutine that periodically collects runtime metrics.
// Returns a stop function to cancel the collection.
func (rc *RuntimeCollector) StartCollector(interval time.Duration) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		rc.Collect()
		for {
			select {
			case <-ticker.C:
				rc.Collect()
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
