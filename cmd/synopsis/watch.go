package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/synopsis/internal/runner"
	"github.com/amishk599/synopsis/internal/scheduler"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rerun the pipeline on an interval",
	Long:  "Runs immediately, then again every schedule.interval; blocks until SIGINT/SIGTERM.",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireCredentials(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := newHTTPClient(cfg)
	m := setupMetrics(ctx, cfg, logger)
	r := runner.New(cfg, runner.Options{}, httpClient, setupReporter(cfg, logger), m, logger)

	sched := scheduler.NewScheduler(r, cfg.Schedule.Interval, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
