package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/synopsis/internal/config"
	"github.com/amishk599/synopsis/internal/metrics"
	"github.com/amishk599/synopsis/internal/report"
)

var (
	cfgPath     string
	debug       bool
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "synopsis",
	Short: "Anime synopsis enrichment pipeline",
	Long:  "Synopsis fans anime metadata out to an LLM chat-completions API, one worker per API key, and stores the summaries it gets back.",
	// Default to `run` so that `synopsis` with no args performs one run.
	RunE:         runRun,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: SYNOPSIS_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides pipeline.metrics_addr)")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > SYNOPSIS_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("SYNOPSIS_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupReporter(cfg *config.Config, logger *slog.Logger) report.Reporter {
	if cfg.Notification.Type == "slack" {
		logger.Info("using slack reporter")
	}
	return report.New(cfg.Notification, newReportClient(), logger)
}

// Webhook and AniList requests have fixed timeouts, independent of enrichment.timeout.
const (
	reportTimeout  = 10 * time.Second
	anilistTimeout = 30 * time.Second
)

// newHTTPClient is used for chat-completions requests only.
func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Enrichment.Timeout}
}

func newReportClient() *http.Client {
	return &http.Client{Timeout: reportTimeout}
}

func newAniListClient() *http.Client {
	return &http.Client{Timeout: anilistTimeout}
}

// setupMetrics creates the collector set and, when an address is configured,
// serves it in the background until ctx is done.
func setupMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) *metrics.Metrics {
	m := metrics.New()
	addr := metricsAddr
	if addr == "" {
		addr = cfg.Pipeline.MetricsAddr
	}
	if addr != "" {
		go func() {
			if err := m.Serve(ctx, addr, logger); err != nil {
				logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
	}
	return m
}
