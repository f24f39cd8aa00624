package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type stopFlags struct {
	pidFile string
	force   bool
	timeout time.Duration
	noWait  bool
}

func newStopCmd(g *globalFlags) *cobra.Command {
	f := &stopFlags{}

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running dserver",
		Long: `Stop the dserver serving the data directory. The server receives SIGTERM
(interrupt on Windows) and flushes every source before it exits.`,
		Example: `  # Stop the server of ./DATA
  dserver stop

  # Force stop without flushing
  dserver stop --force

  # Wait longer for a large flush
  dserver stop --timeout 2m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd, g, f)
		},
	}

	cmd.Flags().StringVar(&f.pidFile, "pid-file", "", "Path to PID file (default: dserver.pid in the data directory)")
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "Send SIGKILL instead of SIGTERM")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "Time to wait for the server to exit")
	cmd.Flags().BoolVar(&f.noWait, "no-wait", false, "Return after signalling without waiting for exit")
	return cmd
}

func runStop(cmd *cobra.Command, g *globalFlags, f *stopFlags) error {
	pidPath := g.pidPath(f.pidFile)

	info, err := ReadPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("%w (no PID file found at %s)", ErrServerNotRunning, pidPath)
	}
	if !info.IsRunning() {
		_ = RemovePIDFile(pidPath)
		return fmt.Errorf("%w (stale PID file removed)", ErrServerNotRunning)
	}

	process, err := os.FindProcess(info.PID)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", info.PID, err)
	}

	sig, sigName := signalTerm, signalTermName()
	if f.force {
		sig, sigName = signalKill, signalKillName()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Stopping dserver (PID %d) with %s... ", info.PID, sigName)
	if err := process.Signal(sig); err != nil {
		fmt.Fprintln(out, "failed")
		return fmt.Errorf("failed to send signal: %w", err)
	}

	// A killed server cannot remove its own PID file.
	if f.force {
		fmt.Fprintln(out, "done")
		time.Sleep(100 * time.Millisecond)
		_ = RemovePIDFile(pidPath)
		return nil
	}
	if f.noWait {
		fmt.Fprintln(out, "signalled")
		return nil
	}

	deadline := time.Now().Add(f.timeout)
	for time.Now().Before(deadline) {
		if !checkProcessRunning(info.PID) {
			fmt.Fprintln(out, "done")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "timeout")
	fmt.Fprintf(out, "\nProcess did not stop within %s.\n", f.timeout)
	fmt.Fprintln(out, "Try: dserver stop --force")
	return errors.New("timeout waiting for process to stop")
}
