package commands

import (
	"aplica-pipeline/internal/components/chrono"
	"aplica-pipeline/internal/components/telemetry"
	"aplica-pipeline/internal/config"
	"aplica-pipeline/internal/pipeline"
	"aplica-pipeline/lib/util/serviceutil"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "aplica",
	Short: "aplica builds the college database from College Scorecard and IPEDS data.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "path to the json5 config, a bare file name is searched for from the cwd upwards")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is what every command needs to run a pipeline stage.
type app struct {
	cfg       config.Config
	pipeline  pipeline.Pipeline
	telemetry telemetry.Telemetry
}

func setup(ctx context.Context) app {
	cfg, err := config.Load(configPath)
	if err != nil {
		serviceutil.Fatal("failed to load config", err)
	}

	otel, err := telemetry.Setup(ctx, "aplica", cfg.Telemetry)
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}

	return app{
		cfg:       cfg,
		pipeline:  pipeline.New(cfg, chrono.NewStandardImpl(), telemetry.NewSlogAPI(), os.Stdout),
		telemetry: otel,
	}
}

// shutdown flushes the telemetry exporters.
func (a app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.telemetry.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to shutdown telemetry", "err", err)
	}
}

func (a app) fatal(message string, err error) {
	a.shutdown()
	serviceutil.Fatal(message, err)
}
