package pipeline

import (
	"context"
	"log/slog"

	"github.com/amishk599/synopsis/internal/metrics"
	"github.com/amishk599/synopsis/internal/model"
)

// workerSlot is the dispatcher's view of one worker.
type workerSlot struct {
	inbound chan<- model.Record // capacity 1, dispatcher is the only sender
	exited  <-chan struct{}     // closed when the worker goroutine returns
}

// Dispatcher hands records to workers on a pull basis: it waits for a
// ReadinessToken, then sends exactly one record to that worker. A worker never
// receives a record it did not ask for. Closing a worker's inbound channel is
// how the dispatcher tells it to terminate.
type Dispatcher struct {
	batches     <-chan []model.Record
	ready       <-chan ReadinessToken
	slots       []workerSlot
	workersGone <-chan struct{}
	counters    *counters
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Run assigns records until batches is closed, then closes every inbound
// channel and returns without waiting for workers to drain.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.terminateAll()

	for {
		var (
			batch []model.Record
			ok    bool
		)
		select {
		case batch, ok = <-d.batches:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			d.logger.Debug("source exhausted, terminating workers")
			return nil
		}

		for _, rec := range batch {
			if err := d.assign(ctx, rec); err != nil {
				return err
			}
		}
	}
}

// assign blocks until some worker is ready, then gives it rec.
func (d *Dispatcher) assign(ctx context.Context, rec model.Record) error {
	var tok ReadinessToken
	select {
	case tok = <-d.ready:
	case <-d.workersGone:
		return ErrWorkersExited
	case <-ctx.Done():
		return ctx.Err()
	}

	slot := d.slots[tok.Worker]
	select {
	case <-slot.exited:
		d.dropped(tok.Worker, rec)
		return nil
	default:
	}

	select {
	case slot.inbound <- rec:
		d.counters.dispatched.Add(1)
		d.metrics.RecordDispatched()
		d.logger.Debug("record assigned", "worker", tok.Worker, "record_id", rec.ID)
		return nil
	case <-slot.exited:
		d.dropped(tok.Worker, rec)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) dropped(worker int, rec model.Record) {
	d.counters.dropped.Add(1)
	d.metrics.RecordAbandoned(worker, "worker_gone")
	d.logger.Warn("worker exited before assignment, dropping record", "worker", worker, "record_id", rec.ID)
}

func (d *Dispatcher) terminateAll() {
	for _, s := range d.slots {
		close(s.inbound)
	}
}
