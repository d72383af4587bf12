package report

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/amishk599/synopsis/internal/config"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunSummary is what an operator sees after each pipeline run.
type RunSummary struct {
	RunID           string
	Status          string // StatusCompleted or StatusFailed
	StartedAt       time.Time
	Duration        time.Duration
	Workers         int
	Dispatched      int64
	Enriched        int64
	Abandoned       int64
	Dropped         int64
	Persisted       int64
	PersistFailures int64
	Err             string // first task error when Status is failed
}

// Reporter delivers a RunSummary somewhere a human will see it.
type Reporter interface {
	Report(ctx context.Context, s RunSummary) error
}

// New returns the reporter selected by cfg.Type. Anything other than "slack" logs.
func New(cfg config.NotificationConfig, httpClient *http.Client, logger *slog.Logger) Reporter {
	if cfg.Type == "slack" {
		return NewSlackReporter(cfg.WebhookURL, httpClient, logger)
	}
	return NewLogReporter(logger)
}

// SampleSummary is a fabricated report used to verify a reporter end to end.
func SampleSummary() RunSummary {
	return RunSummary{
		RunID:      "test-run",
		Status:     StatusCompleted,
		StartedAt:  time.Now().Add(-90 * time.Second),
		Duration:   90 * time.Second,
		Workers:    3,
		Dispatched: 1200,
		Enriched:   1187,
		Abandoned:  13,
		Persisted:  1187,
	}
}
