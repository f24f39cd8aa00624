package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peterlharding/dserver/pkg/recovery"
)

type recoverFlags struct {
	all     bool
	dryRun  bool
	force   bool
	pidFile string
}

func newRecoverCmd(g *globalFlags) *cobra.Command {
	f := &recoverFlags{}

	cmd := &cobra.Command{
		Use:   "recover [source...]",
		Short: "Replay the trails of sources into their .dat files",
		Long: `Replay tmp/<name>.used and tmp/<name>.stored into the backing file of each
source, so that values handed out before a crash are not handed out again and
values stored are not lost. The previous file is backed up and the trails are
archived as tmp/<timestamp>_<name>.used|stored.

The server must not be running on the same data directory.`,
		Example: `  # Show what would change for two sources
  dserver recover accounts users --dry-run

  # Recover every source
  dserver recover --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(cmd, g, f, args)
		},
	}

	cmd.Flags().BoolVar(&f.all, "all", false, "Recover every declared source")
	cmd.Flags().BoolVarP(&f.dryRun, "dry-run", "n", false, "Report without changing any file")
	cmd.Flags().BoolVar(&f.force, "force", false, "Recover even if a server appears to be running")
	cmd.Flags().StringVar(&f.pidFile, "pid-file", "", "Path to PID file (default: dserver.pid in the data directory)")
	return cmd
}

func runRecover(cmd *cobra.Command, g *globalFlags, f *recoverFlags, names []string) error {
	dataDir, _, cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	decls, err := selectSources(cfg, names, f.all)
	if err != nil {
		return err
	}

	if !f.dryRun && !f.force {
		if info, err := ReadPIDFile(g.pidPath(f.pidFile)); err == nil && info.IsRunning() {
			return fmt.Errorf("%w (PID %d)", ErrServerRunning, info.PID)
		}
	}

	logger, closer, err := g.openLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	results, err := recovery.RecoverAll(cfg.SourceDir(dataDir), decls, recovery.Options{
		DryRun: f.dryRun,
		Logger: logger,
	})

	w := cmd.OutOrStdout()
	if perr := printResult(w, g.jsonOutput, results, func() {
		for _, r := range results {
			fmt.Fprintln(w, r)
			for _, a := range r.Archived {
				fmt.Fprintf(w, "  archived %s\n", a)
			}
		}
		if f.dryRun {
			fmt.Fprintln(w, "Dry run: no files changed")
		}
	}); perr != nil && err == nil {
		err = perr
	}
	return err
}
