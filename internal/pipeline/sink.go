package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/amishk599/synopsis/internal/metrics"
	"github.com/amishk599/synopsis/internal/model"
)

// ResultSink is the single consumer of the shared outbound channel. It batches
// results into the store and finishes only after every one of the n workers
// has sent its own Terminate.
type ResultSink struct {
	out           <-chan outbound
	n             int
	store         model.ResultStore
	batchSize     int
	flushInterval time.Duration
	counters      *counters
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// Run drains until all workers have terminated or ctx is cancelled. Persist
// failures are logged and counted; they never stop the drain.
func (s *ResultSink) Run(ctx context.Context) error {
	terminated := make([]bool, s.n)
	remaining := s.n
	buf := make([]model.EnrichedResult, 0, s.batchSize)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case msg := <-s.out:
			if msg.Terminate {
				if !terminated[msg.Worker] {
					terminated[msg.Worker] = true
					remaining--
					s.counters.terminated.Add(1)
					s.logger.Debug("worker terminated", "worker", msg.Worker, "remaining", remaining)
				}
				continue
			}
			buf = append(buf, msg.Result)
			if len(buf) >= s.batchSize {
				buf = s.flush(ctx, buf)
			}

		case <-ticker.C:
			buf = s.flush(ctx, buf)

		case <-ctx.Done():
			// Keep what already reached the sink.
		drain:
			for {
				select {
				case msg := <-s.out:
					if !msg.Terminate {
						buf = append(buf, msg.Result)
					}
				default:
					break drain
				}
			}
			s.flush(context.WithoutCancel(ctx), buf)
			return ctx.Err()
		}
	}

	s.flush(ctx, buf)
	s.logger.Debug("all workers terminated")
	return nil
}

func (s *ResultSink) flush(ctx context.Context, buf []model.EnrichedResult) []model.EnrichedResult {
	if len(buf) == 0 {
		return buf
	}
	if err := s.store.Upsert(ctx, buf); err != nil {
		s.counters.persistFailures.Add(int64(len(buf)))
		s.metrics.RecordPersistFailures(len(buf))
		s.logger.Error("persisting results failed, batch lost", "count", len(buf), "first_record_id", buf[0].ID, "error", err)
	} else {
		s.counters.persisted.Add(int64(len(buf)))
		s.metrics.RecordPersisted(len(buf))
		s.logger.Debug("persisted results", "count", len(buf))
	}
	return make([]model.EnrichedResult, 0, s.batchSize)
}
