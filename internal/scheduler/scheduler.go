package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/amishk599/synopsis/internal/report"
)

// Runner performs one complete enrichment run.
type Runner interface {
	RunOnce(ctx context.Context) (report.RunSummary, error)
}

// Scheduler owns the watch loop: one run immediately, then one run per interval.
// Runs never overlap; a slow run delays the next tick rather than stacking up.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that reruns runner at the given interval.
func NewScheduler(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the loop. It returns nil when ctx is cancelled (graceful shutdown).
// A failed run is logged and does not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "interval", s.interval.String())

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-time.After(s.interval):
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sum, err := s.runner.RunOnce(ctx)
	if err != nil {
		s.logger.Error("run failed", "run_id", sum.RunID, "error", err)
		return
	}
	s.logger.Info("next run scheduled", "in", s.interval.String(), "last_run_id", sum.RunID, "enriched", sum.Enriched)
}
