package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/peterlharding/dserver/pkg/config"
	"github.com/peterlharding/dserver/pkg/logging"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	dataDir    string
	configFile string
	logLevel   string
	logFormat  string
	logFile    string
	debug      int
	jsonOutput bool
}

// NewRootCmd builds the dserver command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "dserver",
		Short: "dserver hands out test data to load-test clients",
		Long: `dserver serves named, file-backed datasets to many concurrent test clients
over a small pipe-delimited protocol. Each value is handed out at most once,
values written by clients are kept, and every read and write is logged so that
state can be recovered after a crash.

Sources are declared in dserver.yaml (or the legacy dserver.ini) in the data
directory; their .dat files live in the environment sub-directory.`,
		SilenceUsage:  true,
		SilenceErrors: true, // We handle errors in Execute()
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.dataDir, "data-dir", "D", "", "Data directory (default: $"+config.EnvDataDir+" or ./DATA)")
	pf.StringVarP(&g.configFile, "config", "c", "", "Configuration file (default: dserver.yaml in the data directory)")
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&g.logFile, "log-file", "", "Also write the log to this file")
	pf.CountVarP(&g.debug, "debug", "d", "Enable debug logging (repeatable)")
	pf.BoolVar(&g.jsonOutput, "json", false, "Output command results in JSON format")

	rootCmd.AddCommand(
		newServeCmd(g),
		newStopCmd(g),
		newStatusCmd(g),
		newVersionCmd(g),
		newValidateCmd(g),
		newRecoverCmd(g),
		newListCmd(g),
		newSendCmd(g),
	)
	return rootCmd
}

// Execute runs the command tree against os.Args. This is called by
// main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveDataDir returns the data directory and fails when it does not
// exist.
func (g *globalFlags) resolveDataDir() (string, error) {
	dir := config.ResolveDataDir(g.dataDir)
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("data directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("data directory %s is not a directory", dir)
	}
	return dir, nil
}

// pidPath returns override, or the PID file of the data directory. The
// directory need not exist.
func (g *globalFlags) pidPath(override string) string {
	if override != "" {
		return override
	}
	return DefaultPIDPath(config.ResolveDataDir(g.dataDir))
}

// loadConfig resolves the data directory and loads the configuration
// from --config or the data directory.
func (g *globalFlags) loadConfig() (dataDir, path string, cfg *config.Config, err error) {
	dataDir, err = g.resolveDataDir()
	if err != nil {
		return "", "", nil, err
	}

	path = g.configFile
	if path == "" {
		path, err = config.Locate(dataDir)
		if err != nil {
			return "", "", nil, err
		}
	}

	cfg, err = config.LoadFromFile(path)
	if err != nil {
		return "", "", nil, err
	}
	return dataDir, path, cfg, nil
}

// selectSources returns the declarations named in names, or all of them
// when all is set.
func selectSources(cfg *config.Config, names []string, all bool) ([]config.SourceConfig, error) {
	if all {
		return cfg.Sources, nil
	}
	if len(names) == 0 {
		return nil, ErrNoSourcesGiven
	}
	decls := make([]config.SourceConfig, 0, len(names))
	for _, name := range names {
		d, ok := cfg.Source(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// openLogger builds the operational logger. The closer releases the log
// file, if any.
func (g *globalFlags) openLogger(stderr io.Writer) (*slog.Logger, io.Closer, error) {
	return logging.Open(logging.Config{
		Level:  logging.VerbosityLevel(logging.ParseLevel(g.logLevel), g.debug),
		Format: logging.ParseFormat(g.logFormat),
		Output: stderr,
		File:   g.logFile,
	})
}
