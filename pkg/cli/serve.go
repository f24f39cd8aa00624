package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/peterlharding/dserver/pkg/audit"
	"github.com/peterlharding/dserver/pkg/cli/internal/output"
	"github.com/peterlharding/dserver/pkg/config"
	"github.com/peterlharding/dserver/pkg/metrics"
	"github.com/peterlharding/dserver/pkg/protocol"
	"github.com/peterlharding/dserver/pkg/registry"
	"github.com/peterlharding/dserver/pkg/scheduler"
	"github.com/peterlharding/dserver/pkg/server"
	"github.com/peterlharding/dserver/pkg/source"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

// envChild marks the re-executed background process.
const envChild = "DSERVER_CHILD"

// serveFlags holds the parsed flags of the serve command. Zero values
// leave the configuration untouched.
type serveFlags struct {
	tcpPort       int
	httpPort      int
	host          string
	flushInterval time.Duration
	detach        bool
	pidFile       string
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the sources and serve them (foreground)",
		Long: `Load every source declared in the configuration and serve them over the raw
TCP protocol and the HTTP transport (query string, WebSocket, status page,
metrics). On SIGINT or SIGTERM the transports are stopped, every source is
flushed back to its .dat file and the trails are closed.`,
		Example: `  # Serve ./DATA with its dserver.yaml
  dserver serve

  # Serve another data directory with debug logging
  dserver serve -D /srv/testdata -d

  # Override the ports from the configuration
  dserver serve --port 9600 --http-port 8080

  # Start in the background
  dserver serve --detach`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, g, f)
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.tcpPort, "port", "p", 0, "TCP port (default from configuration)")
	fl.IntVarP(&f.httpPort, "http-port", "W", 0, "HTTP port (default from configuration)")
	fl.StringVar(&f.host, "host", "", "Bind host (default from configuration)")
	fl.DurationVar(&f.flushInterval, "flush-interval", 0, "Flush sources periodically (overrides configuration)")
	fl.BoolVar(&f.detach, "detach", false, "Run server in background")
	fl.StringVar(&f.pidFile, "pid-file", "", "Path to PID file (default: dserver.pid in the data directory)")
	return cmd
}

// apply overlays the flags onto cfg.
func (f *serveFlags) apply(cfg *config.Config) error {
	if f.tcpPort != 0 {
		cfg.Server.TCPPort = f.tcpPort
	}
	if f.httpPort != 0 {
		cfg.Server.HTTPPort = f.httpPort
	}
	if f.host != "" {
		cfg.Server.Host = f.host
	}
	if f.flushInterval != 0 {
		cfg.Flush = config.FlushConfig{Interval: f.flushInterval}
	}
	return cfg.Validate()
}

// serveContext holds the runtime state of a serve invocation.
type serveContext struct {
	cfg     *config.Config
	cfgPath string
	dataDir string
	pidPath string
	log     *slog.Logger

	mirror   *audit.MQTTMirror
	registry *registry.Registry
	server   *server.Server
	sched    *scheduler.Scheduler
}

func runServe(cmd *cobra.Command, g *globalFlags, f *serveFlags) error {
	dataDir, cfgPath, cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if err := f.apply(cfg); err != nil {
		return err
	}

	pidPath := f.pidFile
	if pidPath == "" {
		pidPath = DefaultPIDPath(dataDir)
	}
	if info, err := ReadPIDFile(pidPath); err == nil && info.IsRunning() && info.PID != os.Getpid() {
		return fmt.Errorf("dserver is already running (PID %d)", info.PID)
	}

	if f.detach && os.Getenv(envChild) == "" {
		return daemonize(cmd.OutOrStdout(), pidPath)
	}

	logger, closer, err := g.openLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	sctx := &serveContext{
		cfg:     cfg,
		cfgPath: cfgPath,
		dataDir: dataDir,
		pidPath: pidPath,
		log:     logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sctx.start(ctx); err != nil {
		_ = sctx.shutdown()
		return err
	}

	printStartupMessage(cmd.OutOrStdout(), sctx)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-waitErr(sctx.server):
		if serveErr != nil {
			logger.Error("transport failed", "error", serveErr)
		}
	}

	if err := sctx.shutdown(); err != nil && serveErr == nil {
		serveErr = err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
	return serveErr
}

func waitErr(srv *server.Server) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- srv.Wait() }()
	return ch
}

// start brings the components up in dependency order. On error the
// caller runs shutdown, which skips what was never started.
func (s *serveContext) start(ctx context.Context) error {
	reg := metrics.Init()

	srcDir := s.cfg.SourceDir(s.dataDir)
	factory := audit.FileFactory(filepath.Join(srcDir, "tmp"), s.cfg.Audit.Sync)
	if m := s.cfg.Audit.MQTT; m != nil {
		mirror, err := audit.NewMQTTMirror(audit.MQTTConfig{
			Broker:   m.Broker,
			Topic:    m.Topic,
			ClientID: m.ClientID,
		}, s.log)
		if err != nil {
			return err
		}
		s.mirror = mirror
		factory = audit.Tee(factory, mirror.Factory())
		s.log.Info("audit mirror connected", "broker", m.Broker, "topic", m.Topic)
	}

	sources, err := registry.Load(srcDir, s.cfg.Sources,
		registry.WithLogger(s.log.With("component", "registry")),
		registry.WithSourceOptions(source.WithAudit(factory)),
	)
	if err != nil {
		return err
	}
	s.registry = sources

	d := protocol.NewDispatcher(sources,
		protocol.WithLogger(s.log.With("component", "dispatcher")),
		protocol.WithVersion(Version),
	)
	s.server = server.New(s.cfg.Server, d, sources,
		server.WithLogger(s.log.With("component", "server")),
		server.WithMetrics(reg),
		server.WithVersion(Version),
		server.WithEnvironment(s.cfg.Environment),
	)
	if err := s.server.Start(ctx); err != nil {
		s.server = nil
		return err
	}

	sched, err := scheduler.New(s.log.With("component", "scheduler"))
	if err != nil {
		return err
	}
	s.sched = sched
	if err := sched.ScheduleFlush(s.cfg.Flush, sources); err != nil {
		return err
	}
	sched.Start()

	info := &PIDFile{
		PID:         os.Getpid(),
		StartTime:   time.Now(),
		Version:     Version,
		Commit:      Commit,
		DataDir:     s.dataDir,
		Environment: s.cfg.Environment,
		Config:      s.cfgPath,
		Transports: TransportInfo{
			TCP:  listenerInfo(s.server.TCPAddr()),
			HTTP: listenerInfo(s.server.HTTPAddr()),
		},
		Sources: sources.Len(),
	}
	if err := WritePIDFile(s.pidPath, info); err != nil {
		return err
	}
	return nil
}

// shutdown stops the transports, then the scheduler, flushes and closes
// every source and finally removes the PID file.
func (s *serveContext) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.stop(ctx)
}

// stop is shutdown with a caller-supplied deadline for the transports. The
// final flush gets its own deadline, so a slow drain never skips it.
func (s *serveContext) stop(ctx context.Context) error {
	var errs []error
	if s.server != nil {
		if err := s.server.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("stop transports: %w", err))
		}
	}
	if s.sched != nil {
		if err := s.sched.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if s.registry != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		err := s.registry.FlushAll(flushCtx)
		cancel()
		if err != nil {
			errs = append(errs, err)
		}
		if err := s.registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.mirror != nil {
		_ = s.mirror.Close()
	}
	if s.pidPath != "" {
		if err := RemovePIDFile(s.pidPath); err != nil {
			s.log.Warn("failed to remove PID file", "error", err)
		}
	}
	return errors.Join(errs...)
}

func printStartupMessage(w io.Writer, s *serveContext) {
	fmt.Fprintf(w, "dserver %s serving %d sources from %s\n", Version, s.registry.Len(), s.cfg.SourceDir(s.dataDir))
	if addr := s.server.TCPAddr(); addr != nil {
		fmt.Fprintf(w, "TCP:  %s\n", addr)
	}
	if addr := s.server.HTTPAddr(); addr != nil {
		fmt.Fprintf(w, "HTTP: http://%s/\n", addr)
	}
	if s.cfg.Flush.Enabled() {
		fmt.Fprintln(w, "Periodic flush enabled")
	}
	fmt.Fprintln(w, "Press Ctrl+C to stop")
}

// daemonize re-executes the current process in the background and waits
// for it to write its PID file.
func daemonize(w io.Writer, pidPath string) error {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), envChild+"=1")
	cmd.SysProcAttr = detachAttrs()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start background server: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if info, err := ReadPIDFile(pidPath); err == nil && info.PID == pid {
			fmt.Fprintf(w, "dserver started in background (PID %d)\n", pid)
			if addr := info.TCPAddr(); addr != "" {
				fmt.Fprintf(w, "TCP:  %s\n", addr)
			}
			if u := info.HTTPURL(); u != "" {
				fmt.Fprintf(w, "HTTP: %s/\n", u)
			}
			return nil
		}
		if !checkProcessRunning(pid) {
			return errors.New("background server exited immediately; run without --detach to see why")
		}
		time.Sleep(100 * time.Millisecond)
	}

	output.Warn(os.Stderr, "background server may have failed to start (no PID file at %s)", pidPath)
	return nil
}
