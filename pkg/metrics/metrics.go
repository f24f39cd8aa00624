package metrics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't match the defined labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when attempting to add a negative value to a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is returned when registering a metric with a name that is already registered.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// atomicFloat64 stores the bits of a float64 for atomic access.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

func (a *atomicFloat64) Store(val float64) {
	a.bits.Store(math.Float64bits(val))
}

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := a.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// MetricType represents the type of a metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is the interface implemented by all metric types.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	// Collect returns all samples for exposition.
	Collect() []Sample
}

// Sample represents a single metric sample with labels.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// family holds one child per label value combination.
type family[T any] struct {
	name       string
	help       string
	labelNames []string
	newChild   func() *T

	mu       sync.RWMutex
	children map[string]*T
	labels   map[string]map[string]string
}

func (f *family[T]) setup(name, help string, labelNames []string, newChild func() *T) {
	f.name = name
	f.help = help
	f.labelNames = labelNames
	f.newChild = newChild
	f.children = make(map[string]*T)
	f.labels = make(map[string]map[string]string)
}

func (f *family[T]) Name() string { return f.name }
func (f *family[T]) Help() string { return f.help }

func (f *family[T]) child(values []string) (*T, error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s expected %d labels, got %d",
			ErrLabelCountMismatch, f.name, len(f.labelNames), len(values))
	}

	key := strings.Join(values, "\x00")
	f.mu.RLock()
	c, ok := f.children[key]
	f.mu.RUnlock()
	if ok {
		return c, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok = f.children[key]; ok {
		return c, nil
	}
	labels := make(map[string]string, len(values))
	for i, n := range f.labelNames {
		labels[n] = values[i]
	}
	c = f.newChild()
	f.children[key] = c
	f.labels[key] = labels
	return c, nil
}

// each visits children in label order so exposition is deterministic.
func (f *family[T]) each(fn func(labels map[string]string, c *T)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.children))
	for k := range f.children {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fn(f.labels[k], f.children[k])
	}
}

// Counter is a monotonically increasing metric.
type Counter struct {
	family[atomicFloat64]
}

func (c *Counter) Type() MetricType { return MetricTypeCounter }

// WithLabels returns the child for the given label values.
func (c *Counter) WithLabels(values ...string) (*CounterVec, error) {
	v, err := c.child(values)
	if err != nil {
		return nil, err
	}
	return &CounterVec{v: v}, nil
}

// Inc increments a counter without labels.
func (c *Counter) Inc() error { return c.Add(1) }

// Add adds delta to a counter without labels.
func (c *Counter) Add(delta float64) error {
	vec, err := c.WithLabels()
	if err != nil {
		return err
	}
	return vec.Add(delta)
}

func (c *Counter) Collect() []Sample {
	var out []Sample
	c.each(func(labels map[string]string, v *atomicFloat64) {
		out = append(out, Sample{Name: c.name, Labels: labels, Value: v.Load()})
	})
	return out
}

// CounterVec is a counter for one label combination.
type CounterVec struct {
	v *atomicFloat64
}

func (v *CounterVec) Inc() error { return v.Add(1) }

func (v *CounterVec) Add(delta float64) error {
	if delta < 0 {
		return ErrNegativeCounterValue
	}
	v.v.Add(delta)
	return nil
}

// Value returns the current count.
func (v *CounterVec) Value() float64 { return v.v.Load() }

// Gauge is a metric that can arbitrarily go up and down.
type Gauge struct {
	family[atomicFloat64]
}

func (g *Gauge) Type() MetricType { return MetricTypeGauge }

// WithLabels returns the child for the given label values.
func (g *Gauge) WithLabels(values ...string) (*GaugeVec, error) {
	v, err := g.child(values)
	if err != nil {
		return nil, err
	}
	return &GaugeVec{v: v}, nil
}

// Set sets a gauge without labels.
func (g *Gauge) Set(value float64) error {
	vec, err := g.WithLabels()
	if err != nil {
		return err
	}
	vec.Set(value)
	return nil
}

func (g *Gauge) Collect() []Sample {
	var out []Sample
	g.each(func(labels map[string]string, v *atomicFloat64) {
		out = append(out, Sample{Name: g.name, Labels: labels, Value: v.Load()})
	})
	return out
}

// GaugeVec is a gauge for one label combination.
type GaugeVec struct {
	v *atomicFloat64
}

func (v *GaugeVec) Set(value float64) { v.v.Store(value) }
func (v *GaugeVec) Inc()              { v.v.Add(1) }
func (v *GaugeVec) Dec()              { v.v.Add(-1) }
func (v *GaugeVec) Add(delta float64) { v.v.Add(delta) }
func (v *GaugeVec) Value() float64    { return v.v.Load() }

type histogramValue struct {
	counts []atomic.Uint64
	sum    atomicFloat64
	count  atomic.Uint64
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	family[histogramValue]
	buckets []float64
}

func (h *Histogram) Type() MetricType { return MetricTypeHistogram }

// WithLabels returns the child for the given label values.
func (h *Histogram) WithLabels(values ...string) (*HistogramVec, error) {
	v, err := h.child(values)
	if err != nil {
		return nil, err
	}
	return &HistogramVec{v: v, buckets: h.buckets}, nil
}

// Observe records a value in a histogram without labels.
func (h *Histogram) Observe(value float64) error {
	vec, err := h.WithLabels()
	if err != nil {
		return err
	}
	vec.Observe(value)
	return nil
}

func (h *Histogram) Collect() []Sample {
	var out []Sample
	h.each(func(labels map[string]string, v *histogramValue) {
		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += v.counts[i].Load()
			bl := make(map[string]string, len(labels)+1)
			for k, val := range labels {
				bl[k] = val
			}
			bl["le"] = formatFloat(bound)
			out = append(out, Sample{Name: h.name + "_bucket", Labels: bl, Value: float64(cumulative)})
		}
		out = append(out,
			Sample{Name: h.name + "_sum", Labels: labels, Value: v.sum.Load()},
			Sample{Name: h.name + "_count", Labels: labels, Value: float64(v.count.Load())},
		)
	})
	return out
}

// HistogramVec is a histogram for one label combination.
type HistogramVec struct {
	v       *histogramValue
	buckets []float64
}

// Observe records a value.
func (v *HistogramVec) Observe(value float64) {
	for i, bound := range v.buckets {
		if value <= bound {
			v.v.counts[i].Add(1)
			break
		}
	}
	v.v.sum.Add(value)
	v.v.count.Add(1)
}

// Registry holds all registered metrics.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates a new metric registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a new counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := &Counter{}
	c.setup(name, help, labels, func() *atomicFloat64 { return new(atomicFloat64) })
	r.register(c)
	return c
}

// NewGauge creates and registers a new gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := &Gauge{}
	g.setup(name, help, labels, func() *atomicFloat64 { return new(atomicFloat64) })
	r.register(g)
	return g
}

// NewHistogram creates and registers a new histogram with the given buckets.
// A +Inf bucket is added when missing.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	b := slices.Clone(buckets)
	slices.Sort(b)
	if len(b) == 0 || !math.IsInf(b[len(b)-1], 1) {
		b = append(b, math.Inf(1))
	}
	h := &Histogram{buckets: b}
	h.setup(name, help, labels, func() *histogramValue {
		return &histogramValue{counts: make([]atomic.Uint64, len(b))}
	})
	r.register(h)
	return h
}

// register panics on duplicate names since they produce invalid output.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, m.Name()))
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// WriteTo writes every metric with samples in Prometheus text format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	metrics := slices.Clone(r.metrics)
	r.mu.RUnlock()

	var sb strings.Builder
	for _, m := range metrics {
		samples := m.Collect()
		if len(samples) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "# HELP %s %s\n", m.Name(), escape(m.Help(), false))
		fmt.Fprintf(&sb, "# TYPE %s %s\n", m.Name(), m.Type())
		for _, s := range samples {
			if len(s.Labels) == 0 {
				fmt.Fprintf(&sb, "%s %s\n", s.Name, formatFloat(s.Value))
			} else {
				fmt.Fprintf(&sb, "%s{%s} %s\n", s.Name, formatLabels(s.Labels), formatFloat(s.Value))
			}
		}
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	})
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + `="` + escape(labels[k], true) + `"`
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%g", v)
	}
}

func escape(s string, quote bool) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	if quote {
		s = strings.ReplaceAll(s, `"`, `\"`)
	}
	return strings.ReplaceAll(s, "\n", `\n`)
}

// DefaultBuckets are request duration buckets in seconds. Requests are
// bound by one trail write, so most fall in the lowest buckets.
var DefaultBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1}
