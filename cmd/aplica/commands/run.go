package commands

import (
	"aplica-pipeline/internal/pipeline"
	"fmt"

	"github.com/spf13/cobra"
)

var runOptions pipeline.RunOptions

func registerRunFlags(cmd *cobra.Command, opts *pipeline.RunOptions) {
	cmd.Flags().BoolVar(&opts.Limits.FirstPageOnly, "test", false, "fetch only the first page")
	cmd.Flags().IntVar(&opts.Limits.MaxSchools, "limit", 0, "maximum number of schools to fetch")
	cmd.Flags().IntVar(&opts.Limits.MaxPages, "pages", 0, "maximum number of pages to fetch")
	cmd.Flags().BoolVar(&opts.Ipeds, "ipeds", false, "download and merge IPEDS data before building")
}

func init() {
	registerRunFlags(runCmd, &runOptions)
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs fetch, build and validate in sequence, stopping at the first failure.",
	Run: func(cmd *cobra.Command, args []string) {
		app := setup(cmd.Context())
		defer app.shutdown()

		result, err := app.pipeline.Run(cmd.Context(), runOptions)
		if err != nil {
			app.fatal("pipeline failed", err)
		}
		fmt.Printf("Pipeline completed, database ready: %s\n", result.Database)
	},
}
