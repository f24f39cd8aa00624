package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/peterlharding/dserver/pkg/cli/internal/output"
	"github.com/peterlharding/dserver/pkg/client"
	"github.com/peterlharding/dserver/pkg/protocol"
)

// StatusOutput represents the JSON output format for status.
type StatusOutput struct {
	Running     bool   `json:"running"`
	PID         int    `json:"pid,omitempty"`
	Version     string `json:"version,omitempty"`
	Commit      string `json:"commit,omitempty"`
	Uptime      string `json:"uptime,omitempty"`
	DataDir     string `json:"dataDir,omitempty"`
	Environment string `json:"environment,omitempty"`
	TCP         string `json:"tcp,omitempty"`
	HTTP        string `json:"http,omitempty"`
	Sources     int    `json:"sources,omitempty"`

	// Responding reports whether the server answered a probe.
	Responding bool `json:"responding"`
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var pidFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running dserver",
		Example: `  # Check server status
  dserver status

  # Output as JSON
  dserver status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := buildStatus(cmd.Context(), g.pidPath(pidFile))
			return printResult(cmd.OutOrStdout(), g.jsonOutput, st, func() {
				printHumanStatus(cmd.OutOrStdout(), st)
			})
		},
	}
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: dserver.pid in the data directory)")
	return cmd
}

func buildStatus(ctx context.Context, pidPath string) *StatusOutput {
	info, err := ReadPIDFile(pidPath)
	if err != nil || !info.IsRunning() {
		return &StatusOutput{}
	}

	st := &StatusOutput{
		Running:     true,
		PID:         info.PID,
		Version:     info.Version,
		Commit:      info.Commit,
		Uptime:      info.FormatUptime(),
		DataDir:     info.DataDir,
		Environment: info.Environment,
		TCP:         info.TCPAddr(),
		HTTP:        info.HTTPURL(),
		Sources:     info.Sources,
	}
	if ctx == nil {
		ctx = context.Background()
	}
	st.Responding = probe(ctx, st)
	return st
}

// probe asks the server for its information over TCP, falling back to
// the HTTP health check.
func probe(ctx context.Context, st *StatusOutput) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if st.TCP != "" {
		c, err := client.Dial(ctx, st.TCP)
		if err == nil {
			defer c.Close()
			if si, err := c.Init(ctx, protocol.LanguageJSON); err == nil && si != nil {
				st.Version = si.Version
				st.Sources = si.Sources
				return true
			}
		}
	}

	if st.HTTP != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, st.HTTP+"/healthz", nil)
		if err != nil {
			return false
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}
	return false
}

func printHumanStatus(w io.Writer, st *StatusOutput) {
	if !st.Running {
		fmt.Fprintln(w, "dserver is not running")
		return
	}

	tw := output.Table(w)
	fmt.Fprintf(tw, "dserver is running (PID %d)\n", st.PID)
	fmt.Fprintf(tw, "Version:\t%s\n", st.Version)
	fmt.Fprintf(tw, "Uptime:\t%s\n", st.Uptime)
	fmt.Fprintf(tw, "Data:\t%s\n", st.DataDir)
	if st.Environment != "" {
		fmt.Fprintf(tw, "Environment:\t%s\n", st.Environment)
	}
	fmt.Fprintf(tw, "Sources:\t%d\n", st.Sources)
	if st.TCP != "" {
		fmt.Fprintf(tw, "TCP:\t%s\n", st.TCP)
	}
	if st.HTTP != "" {
		fmt.Fprintf(tw, "HTTP:\t%s/\n", st.HTTP)
	}
	if !st.Responding {
		fmt.Fprintf(tw, "Warning:\tserver did not answer\n")
	}
	_ = tw.Flush()
}
