package cli

import (
	"github.com/spf13/cobra"

	"github.com/peterlharding/dserver/pkg/recovery"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list [source...]",
		Short: "Print the current contents of sources",
		Long: `Print the records each source would serve next, in the layout of its .dat
file. Keyed groups are shortened to their first and last record and a count.
Nothing is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _, cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			decls, err := selectSources(cfg, args, all)
			if err != nil {
				return err
			}
			dir := cfg.SourceDir(dataDir)
			for _, d := range decls {
				if err := recovery.List(cmd.OutOrStdout(), dir, d); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "List every declared source")
	return cmd
}
