package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/synopsis/internal/report"
)

var notifyFailed bool

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a sample run report",
	Long:  "Sends a fabricated run report through the configured reporter (log or slack) so the channel can be checked without a real run.",
	RunE:  runNotifyTest,
}

func init() {
	notifyTestCmd.Flags().BoolVar(&notifyFailed, "failed", false, "send the report of a failed run instead")
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sum := report.SampleSummary()
	if notifyFailed {
		sum.Status = report.StatusFailed
		sum.Err = "sample failure: metadata store unavailable"
	}

	r := setupReporter(cfg, logger)
	if err := r.Report(context.Background(), sum); err != nil {
		logger.Error("sample report failed", "type", cfg.Notification.Type, "error", err)
		os.Exit(1)
	}
	logger.Info("sample report sent", "type", cfg.Notification.Type, "status", sum.Status)
	return nil
}
