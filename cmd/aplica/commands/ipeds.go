package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(ipedsCmd)
}

var ipedsCmd = &cobra.Command{
	Use:   "ipeds",
	Short: "Downloads the IPEDS survey files and merges them on UNITID.",
	Run: func(cmd *cobra.Command, args []string) {
		app := setup(cmd.Context())
		defer app.shutdown()

		saved, err := app.pipeline.Ipeds(cmd.Context())
		if err != nil {
			app.fatal("ipeds failed", err)
		}
		fmt.Printf("Saved %s, merged into %s\n", strings.Join(saved, ", "), app.cfg.Paths.IpedsMergedCSV())
	},
}
