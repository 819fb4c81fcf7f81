package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Checks whether the College Scorecard api is available or rate limited.",
	Run: func(cmd *cobra.Command, args []string) {
		app := setup(cmd.Context())
		defer app.shutdown()

		status, err := app.pipeline.CheckRateLimit(cmd.Context())
		if err != nil {
			app.fatal("request failed", err)
		}

		fmt.Printf("Status Code: %d\n", status.StatusCode)
		switch {
		case status.Available:
			fmt.Println("API is available, rate limit OK")
			fmt.Printf("  School: %s\n", status.SampleName)
			return
		case status.RateLimited && status.RetryAfter != "":
			fmt.Printf("Rate limited, wait %s seconds\n", status.RetryAfter)
		case status.RateLimited:
			fmt.Println("Rate limited, wait 10-15 minutes")
		default:
			fmt.Println("API did not return any school")
		}
		app.shutdown()
		os.Exit(1)
	},
}
