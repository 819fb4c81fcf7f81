package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateDatabase string

func init() {
	validateCmd.Flags().StringVar(&validateDatabase, "db", "", "database file to validate (default: the newest in the output directory)")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Checks the data quality of a built database and saves a report.",
	Run: func(cmd *cobra.Command, args []string) {
		app := setup(cmd.Context())
		defer app.shutdown()

		result, err := app.pipeline.Validate(cmd.Context(), validateDatabase)
		if err != nil {
			app.fatal("validate failed", err)
		}
		fmt.Printf("Validation report saved to: %s\n", result.Report)
	},
}
