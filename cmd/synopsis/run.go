package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/synopsis/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich every pending record once, then exit",
	Long:  "Runs the pipeline once over the metadata store and persists results. Exits non-zero if the run failed.",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"workers", len(cfg.Credentials),
		"model", cfg.Enrichment.Model,
		"sink", cfg.Sink.Backend,
		"metadata_db", cfg.Source.DBPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := newHTTPClient(cfg)
	m := setupMetrics(ctx, cfg, logger)
	r := runner.New(cfg, runner.Options{}, httpClient, setupReporter(cfg, logger), m, logger)

	sum, err := r.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, runner.ErrLocked) {
			logger.Error("sink is locked by another run", "error", err)
		} else {
			logger.Error("run failed", "run_id", sum.RunID, "error", err)
		}
		os.Exit(1)
	}

	logger.Info("run complete", "run_id", sum.RunID, "enriched", sum.Enriched, "persisted", sum.Persisted)
	return nil
}
