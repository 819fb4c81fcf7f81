package commands

import (
	"aplica-pipeline/internal/pipeline"

	"github.com/spf13/cobra"
)

var buildOptions pipeline.BuildOptions

func init() {
	buildCmd.Flags().BoolVar(&buildOptions.MergeIpeds, "ipeds", false, "merge the processed IPEDS data when present")
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Builds a fresh database from the fetched scorecard data.",
	Run: func(cmd *cobra.Command, args []string) {
		app := setup(cmd.Context())
		defer app.shutdown()

		_, err := app.pipeline.Build(cmd.Context(), buildOptions)
		if err != nil {
			app.fatal("build failed", err)
		}
	},
}
