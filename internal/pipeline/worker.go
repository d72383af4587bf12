package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/synopsis/internal/metrics"
	"github.com/amishk599/synopsis/internal/model"
)

// Worker owns one credential (through its Enricher) and processes one record
// at a time. Each cycle it announces readiness, waits for an assignment, and
// enriches it. Retries and rate-limit waits happen inside the Enricher and
// block only this worker.
type Worker struct {
	id       int
	enricher model.Enricher
	ready    chan<- ReadinessToken
	inbound  <-chan model.Record
	out      chan<- outbound
	exited   chan struct{}
	counters *counters
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Run loops until the inbound channel is closed or ctx is cancelled. Whatever
// the exit path, including a panic, the worker's Terminate is forwarded to the
// sink as its final message.
func (w *Worker) Run(ctx context.Context) (err error) {
	defer close(w.exited)
	defer w.terminate(ctx)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker panicked", "panic", r)
			err = fmt.Errorf("worker %d panicked: %v", w.id, r)
		}
	}()

	for {
		select {
		case w.ready <- ReadinessToken{Worker: w.id}:
		case <-ctx.Done():
			return ctx.Err()
		}

		var (
			rec model.Record
			ok  bool
		)
		select {
		case rec, ok = <-w.inbound:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			w.logger.Debug("terminate received")
			return nil
		}

		if err := w.process(ctx, rec); err != nil {
			return err
		}
	}
}

// process enriches one record. It only returns an error when ctx is done.
func (w *Worker) process(ctx context.Context, rec model.Record) error {
	start := time.Now()
	result, err := w.enricher.Enrich(ctx, rec)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reason := abandonReason(err)
		w.counters.abandoned.Add(1)
		w.metrics.RecordAbandoned(w.id, reason)
		w.logger.Warn("record abandoned", "record_id", rec.ID, "reason", reason, "error", err)
		return nil
	}

	select {
	case w.out <- outbound{Worker: w.id, Result: result}:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.counters.enriched.Add(1)
	w.metrics.RecordEnriched(w.id, time.Since(start))
	w.logger.Debug("record enriched", "record_id", rec.ID, "took", time.Since(start))
	return nil
}

func (w *Worker) terminate(ctx context.Context) {
	select {
	case w.out <- outbound{Worker: w.id, Terminate: true}:
	case <-ctx.Done():
		w.logger.Warn("context cancelled before terminate reached the sink")
	}
}

func abandonReason(err error) string {
	switch {
	case errors.Is(err, model.ErrUnparseable):
		return "unparseable"
	case errors.Is(err, model.ErrRetriesExhausted):
		return "retries_exhausted"
	default:
		return "error"
	}
}
