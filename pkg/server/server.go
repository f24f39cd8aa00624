package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/peterlharding/dserver/pkg/config"
	"github.com/peterlharding/dserver/pkg/logging"
	"github.com/peterlharding/dserver/pkg/metrics"
	"github.com/peterlharding/dserver/pkg/protocol"
	"github.com/peterlharding/dserver/pkg/source"
)

// Common server errors.
var (
	ErrAlreadyRunning = errors.New("server is already running")
	ErrNoTransports   = errors.New("no transport enabled: set tcpPort or httpPort")
)

// Sources lists the served sources for the status page.
type Sources interface {
	All() []source.Source
	Len() int
}

// Server runs the TCP, HTTP and WebSocket transports for one dispatcher.
type Server struct {
	cfg         config.ServerConfig
	dispatcher  *protocol.Dispatcher
	sources     Sources
	logger      *slog.Logger
	metrics     *metrics.Registry
	version     string
	environment string

	mu         sync.Mutex
	running    bool
	startedAt  atomic.Int64
	ctx        context.Context
	cancel     context.CancelFunc
	tcpLn      net.Listener
	httpLn     net.Listener
	httpServer *http.Server
	group      *errgroup.Group
	handlers   sync.WaitGroup
	conns      *connections
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the registry served on /metrics. Without it the
// default registry is used when initialised.
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Server) { s.metrics = r }
}

// WithVersion sets the version shown on the status page.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// WithEnvironment sets the environment shown on the status page.
func WithEnvironment(env string) Option {
	return func(s *Server) { s.environment = env }
}

// WithTCPListener serves TCP on ln instead of listening on cfg.TCPPort.
func WithTCPListener(ln net.Listener) Option {
	return func(s *Server) { s.tcpLn = ln }
}

// WithHTTPListener serves HTTP on ln instead of listening on cfg.HTTPPort.
func WithHTTPListener(ln net.Listener) Option {
	return func(s *Server) { s.httpLn = ln }
}

// New creates a server. It does not listen until Start.
func New(cfg config.ServerConfig, d *protocol.Dispatcher, sources Sources, opts ...Option) *Server {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = config.DefaultMaxMessageSize
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 1
	}
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		sources:    sources,
		logger:     logging.Nop(),
		version:    "dev",
		conns:      newConnections(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// Start opens the listeners and begins serving. Listener errors are
// returned; errors while serving are reported by Wait.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	if s.tcpLn == nil && s.cfg.TCPPort > 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.TCPPort)))
		if err != nil {
			return fmt.Errorf("failed to listen on TCP port %d: %w", s.cfg.TCPPort, err)
		}
		s.tcpLn = ln
	}
	if s.httpLn == nil && s.cfg.HTTPPort > 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.HTTPPort)))
		if err != nil {
			if s.tcpLn != nil {
				_ = s.tcpLn.Close()
				s.tcpLn = nil
			}
			return fmt.Errorf("failed to listen on HTTP port %d: %w", s.cfg.HTTPPort, err)
		}
		s.httpLn = ln
	}
	if s.tcpLn == nil && s.httpLn == nil {
		return ErrNoTransports
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.group = new(errgroup.Group)
	s.startedAt.Store(time.Now().UnixNano())

	if s.tcpLn != nil {
		if s.cfg.MaxConnections > 0 {
			s.tcpLn = netutil.LimitListener(s.tcpLn, s.cfg.MaxConnections)
		}
		ln := s.tcpLn
		s.group.Go(func() error { return s.serveTCP(ln) })
		s.logger.Info("TCP transport listening", "addr", ln.Addr().String())
	}

	if s.httpLn != nil {
		s.httpServer = &http.Server{
			Handler:           s.routes(),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return s.ctx },
		}
		srv, ln := s.httpServer, s.httpLn
		s.group.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
		s.logger.Info("HTTP transport listening", "addr", ln.Addr().String())
	}

	s.running = true
	return nil
}

// Wait blocks until every transport has stopped and returns the first
// serving error.
func (s *Server) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Stop closes the listeners and every open connection, then waits for the
// connection handlers to finish or ctx to expire. In-flight requests
// complete before their connection closes.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	var errs []error
	if s.tcpLn != nil {
		if err := s.tcpLn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("TCP listener close: %w", err))
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
		}
	}

	s.cancel()
	if n := s.conns.closeAll(); n > 0 {
		s.logger.Info("closed client connections", "count", n)
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for connections: %w", ctx.Err()))
	}

	if err := s.group.Wait(); err != nil {
		errs = append(errs, err)
	}

	s.running = false
	s.startedAt.Store(0)
	s.tcpLn, s.httpLn, s.httpServer = nil, nil, nil
	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// TCPAddr returns the TCP listener address, or nil.
func (s *Server) TCPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcpLn == nil {
		return nil
	}
	return s.tcpLn.Addr()
}

// HTTPAddr returns the HTTP listener address, or nil.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Connections returns the open TCP and WebSocket connections.
func (s *Server) Connections() []ConnectionInfo {
	return s.conns.List()
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	started := s.startedAt.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}

// newLimiter returns the per-connection request limiter, or nil when
// unlimited.
func (s *Server) newLimiter() *rate.Limiter {
	if s.cfg.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
}
