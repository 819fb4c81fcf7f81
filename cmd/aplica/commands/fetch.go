package commands

import (
	"aplica-pipeline/internal/scorecard"
	"fmt"

	"github.com/spf13/cobra"
)

var fetchLimits scorecard.Limits

func init() {
	fetchCmd.Flags().BoolVar(&fetchLimits.FirstPageOnly, "test", false, "fetch only the first page")
	fetchCmd.Flags().IntVar(&fetchLimits.MaxSchools, "limit", 0, "maximum number of schools to fetch")
	fetchCmd.Flags().IntVar(&fetchLimits.MaxPages, "pages", 0, "maximum number of pages to fetch")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Downloads operating schools from the College Scorecard api into the raw directory.",
	Run: func(cmd *cobra.Command, args []string) {
		app := setup(cmd.Context())
		defer app.shutdown()

		n, err := app.pipeline.Fetch(cmd.Context(), fetchLimits)
		if err != nil {
			app.fatal("fetch failed", err)
		}
		fmt.Printf("Fetched %d schools into %s\n", n, app.cfg.Paths.ScorecardCSV())
	},
}
