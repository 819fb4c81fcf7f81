package commands

import (
	"aplica-pipeline/internal/components/chrono"
	"aplica-pipeline/internal/components/telemetry"
	"aplica-pipeline/internal/pipeline"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	scheduleSpec    string
	scheduleOptions pipeline.RunOptions
)

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "0 3 1 * *", "cron spec the pipeline is run on")
	registerRunFlags(scheduleCmd, &scheduleOptions)
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Runs the full pipeline on a cron schedule until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		app := setup(ctx)
		defer app.shutdown()

		telemetry.InstrumentPerfStats(ctx)

		cron := chrono.NewStandardCron(telemetry.NewSlogAPI())
		err := cron.Cron(scheduleSpec, func() {
			result, err := app.pipeline.Run(ctx, scheduleOptions)
			if err != nil {
				slog.Error("scheduled run failed", "err", err)
				return
			}
			slog.Info("scheduled run finished", "database", result.Database, "status", result.Status, "issues", result.Issues)
		})
		if err != nil {
			app.fatal(fmt.Sprintf("invalid cron spec %q", scheduleSpec), err)
		}
		slog.Info("waiting for the next scheduled run", "cron", scheduleSpec)

		<-ctx.Done()
		cron.Stop()
	},
}
