package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peterlharding/dserver/pkg/audit"
	"github.com/peterlharding/dserver/pkg/cli/internal/output"
	"github.com/peterlharding/dserver/pkg/source"
)

// ValidateOutput represents the JSON output format for validate.
type ValidateOutput struct {
	Valid     bool              `json:"valid"`
	Config    string            `json:"config"`
	SourceDir string            `json:"sourceDir"`
	Sources   []ValidatedSource `json:"sources"`
}

// ValidatedSource is the load result of one declared source.
type ValidatedSource struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and load every source without serving",
		Long: `Load the configuration and open every declared source read-only. No trail
files are created and nothing is written. Each source is reported with its
size, and any source that cannot be loaded makes the command fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, path, cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			res := ValidateOutput{Valid: true, Config: path, SourceDir: cfg.SourceDir(dataDir)}
			for _, d := range cfg.Sources {
				res.Sources = append(res.Sources, validateSource(res.SourceDir, d.Name, d.Type, d.Options()))
			}
			for _, s := range res.Sources {
				if s.Error != "" {
					res.Valid = false
				}
			}

			w := cmd.OutOrStdout()
			if err := printResult(w, g.jsonOutput, res, func() {
				fmt.Fprintf(w, "Config: %s\n", res.Config)
				tw := output.Table(w)
				for _, s := range res.Sources {
					if s.Error != "" {
						fmt.Fprintf(tw, "Source: %s\tType: %s\tERROR: %s\n", s.Name, s.Type, s.Error)
						continue
					}
					fmt.Fprintf(tw, "Source: %s\tType: %s\t%s\n", s.Name, s.Type, s.Summary)
				}
				_ = tw.Flush()
			}); err != nil {
				return err
			}

			if !res.Valid {
				return fmt.Errorf("configuration %s has sources that cannot be loaded", path)
			}
			return nil
		},
	}
}

func validateSource(dir, name, typeName string, opts source.Options) ValidatedSource {
	out := ValidatedSource{Name: name, Type: typeName}

	typ, err := source.ParseType(typeName)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Type = string(typ)

	src, err := source.Open(name, dir, typ, opts, source.WithAudit(audit.NoOpFactory()))
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer src.Close()
	out.Summary = src.Summary()
	return out
}
