package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

// newRunsCmd creates the 'runs' subcommand for inspecting run history from
// the terminal.
func newRunsCmd() *cobra.Command {
	var limit int
	var stuck bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent scrape runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			repo := ingest.NewRunRepo(a.Store)

			var records []ingest.RunRecord
			if stuck {
				records, err = repo.Stuck(cmd.Context(), a.Clock.Now(), a.Config.MaxRunAge())
			} else {
				records, err = repo.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to list")
	cmd.Flags().BoolVar(&stuck, "stuck", false, "list only runs that appear stuck")
	return cmd
}
