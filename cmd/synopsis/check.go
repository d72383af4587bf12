package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/synopsis/internal/report"
	"github.com/amishk599/synopsis/internal/runner"
)

var checkLimit int

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry run: enrich, log results, persist nothing",
	Long:  "Runs the full pipeline against a sink that only logs. Already-enriched records are not skipped. Use --limit to cap the number of records.",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().IntVarP(&checkLimit, "limit", "n", 5, "stop after this many records (0 = no limit)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("check mode: nothing will be persisted", "limit", checkLimit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := newHTTPClient(cfg)
	r := runner.New(cfg, runner.Options{DryRun: true, Limit: checkLimit}, httpClient, report.NewLogReporter(logger), nil, logger)

	if _, err := r.RunOnce(ctx); err != nil {
		logger.Error("check failed", "error", err)
		os.Exit(1)
	}

	logger.Info("check complete")
	return nil
}
