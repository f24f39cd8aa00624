package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionOutput represents the JSON output format for version.
type VersionOutput struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func newVersionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := VersionOutput{
				Version:   Version,
				Commit:    Commit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			w := cmd.OutOrStdout()
			return printResult(w, g.jsonOutput, v, func() {
				fmt.Fprintf(w, "dserver %s\n", v.Version)
				fmt.Fprintf(w, "  commit:   %s\n", v.Commit)
				fmt.Fprintf(w, "  built:    %s\n", v.BuildDate)
				fmt.Fprintf(w, "  go:       %s\n", v.GoVersion)
				fmt.Fprintf(w, "  platform: %s\n", v.Platform)
			})
		},
	}
}
