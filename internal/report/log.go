package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// Ensure LogReporter implements Reporter.
var _ Reporter = (*LogReporter)(nil)

// LogReporter writes the run summary to the given logger as one structured message.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter returns a reporter that logs via slog.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report never fails.
func (r *LogReporter) Report(_ context.Context, s RunSummary) error {
	args := []any{
		"run_id", s.RunID,
		"status", s.Status,
		"started", humanize.Time(s.StartedAt),
		"duration", s.Duration.Round(time.Millisecond).String(),
		"workers", s.Workers,
		"dispatched", humanize.Comma(s.Dispatched),
		"enriched", humanize.Comma(s.Enriched),
		"abandoned", s.Abandoned,
		"dropped", s.Dropped,
		"persisted", humanize.Comma(s.Persisted),
		"persist_failures", s.PersistFailures,
	}
	if s.Err != "" {
		args = append(args, "error", s.Err)
	}

	if s.Status == StatusFailed {
		r.logger.Error("run finished", args...)
		return nil
	}
	r.logger.Info("run finished", args...)
	return nil
}
