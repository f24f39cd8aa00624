// Package registry holds the ordered set of sources a server dispenses.
//
// A Registry is built once at startup and never changes afterwards: the
// slice of sources is read-only and every source guards its own payload.
// A source's handle is its position in the configuration.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/peterlharding/dserver/pkg/config"
	"github.com/peterlharding/dserver/pkg/logging"
	"github.com/peterlharding/dserver/pkg/metrics"
	"github.com/peterlharding/dserver/pkg/source"
)

// NoHandle is returned by Lookup for an unknown name.
const NoHandle = -1

// Common registry errors.
var (
	ErrNilSource       = errors.New("source cannot be nil")
	ErrDuplicateSource = errors.New("duplicate source name")
)

// Registry is an immutable, ordered list of sources.
type Registry struct {
	sources []source.Source
	byName  map[string]int
	logger  *slog.Logger
}

// Option configures Load.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	sources []source.Option
}

// WithLogger sets the logger used by the registry and passed to sources.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSourceOptions adds options applied to every source at Open.
func WithSourceOptions(opts ...source.Option) Option {
	return func(o *options) {
		o.sources = append(o.sources, opts...)
	}
}

// New builds a registry from already opened sources. Handles follow the
// argument order.
func New(logger *slog.Logger, sources ...source.Source) (*Registry, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Registry{
		sources: make([]source.Source, 0, len(sources)),
		byName:  make(map[string]int, len(sources)),
		logger:  logger.With("component", "registry"),
	}
	for _, s := range sources {
		if s == nil {
			return nil, ErrNilSource
		}
		if _, exists := r.byName[s.Name()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, s.Name())
		}
		r.byName[s.Name()] = len(r.sources)
		r.sources = append(r.sources, s)
	}
	return r, nil
}

// Load opens every declared source from dir. Any failure is fatal: the
// sources opened so far are closed and the error is returned, so a server
// never runs with a partial registry.
func Load(dir string, decls []config.SourceConfig, opts ...Option) (*Registry, error) {
	o := &options{logger: logging.Nop()}
	for _, opt := range opts {
		opt(o)
	}

	sourceOpts := append([]source.Option{source.WithLogger(o.logger)}, o.sources...)

	opened := make([]source.Source, 0, len(decls))
	fail := func(err error) (*Registry, error) {
		for _, s := range opened {
			_ = s.Close()
		}
		return nil, err
	}

	for _, d := range decls {
		typ, err := d.SourceType()
		if err != nil {
			return fail(fmt.Errorf("source %q: %w", d.Name, err))
		}
		src, err := source.Open(d.Name, dir, typ, d.Options(), sourceOpts...)
		if err != nil {
			return fail(fmt.Errorf("failed to load source %q: %w", d.Name, err))
		}
		opened = append(opened, src)
		o.logger.Info("loaded source", "source", src.Name(), "type", string(src.Type()), "summary", src.Summary())
	}

	r, err := New(o.logger, opened...)
	if err != nil {
		return fail(err)
	}
	r.recordMetrics()
	return r, nil
}

func (r *Registry) recordMetrics() {
	counts := make(map[source.Type]int)
	for _, s := range r.sources {
		counts[s.Type()]++
	}
	for typ, n := range counts {
		metrics.SetSources(string(typ), n)
	}
}

// Lookup returns the handle of the named source, or NoHandle.
func (r *Registry) Lookup(name string) int {
	if i, ok := r.byName[name]; ok {
		return i
	}
	return NoHandle
}

// Get returns the source with the given handle.
func (r *Registry) Get(handle int) (source.Source, bool) {
	if handle < 0 || handle >= len(r.sources) {
		return nil, false
	}
	return r.sources[handle], true
}

// ByName returns the named source.
func (r *Registry) ByName(name string) (source.Source, bool) {
	return r.Get(r.Lookup(name))
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

// All returns the sources in handle order.
func (r *Registry) All() []source.Source {
	return slices.Clone(r.sources)
}

// FlushAll flushes every source concurrently. A failing source does not
// stop the others; all failures are logged and returned joined.
func (r *Registry) FlushAll(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, s := range r.sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("flush %s: %w", s.Name(), err))
				mu.Unlock()
				return nil
			}

			err := s.Flush()
			metrics.ObserveFlush(err)
			if err != nil {
				r.logger.Error("flush failed", "source", s.Name(), "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("flush %s: %w", s.Name(), err))
				mu.Unlock()
				return nil
			}
			r.logger.Debug("flushed source", "source", s.Name())
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Close closes every source's trails.
func (r *Registry) Close() error {
	var errs []error
	for _, s := range r.sources {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
