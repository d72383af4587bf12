// Package pipeline moves records from a Source through a pool of
// credential-bound enrichment workers into a result store.
//
// Topology: one source feeder, one dispatcher, N workers, one sink. Workers
// pull work by sending a ReadinessToken; the dispatcher answers each token with
// exactly one record on that worker's private inbound channel (capacity 1).
// Results flow to the sink over one shared, bounded outbound channel. The run
// is complete when the sink has seen a Terminate from every worker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/synopsis/internal/metrics"
	"github.com/amishk599/synopsis/internal/model"
)

// Options sizes the channels and the sink's write batching.
type Options struct {
	OutboundCapacity int
	BatchSize        int
	FlushInterval    time.Duration
}

// DefaultOptions matches the config defaults.
func DefaultOptions() Options {
	return Options{OutboundCapacity: 128, BatchSize: 16, FlushInterval: 5 * time.Second}
}

// Pipeline is a reusable description of a run: one Enricher per credential
// plus the store results go to.
type Pipeline struct {
	enrichers []model.Enricher
	store     model.ResultStore
	opts      Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New validates the pool. Worker i uses enrichers[i] for the whole run.
func New(enrichers []model.Enricher, store model.ResultStore, opts Options, m *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if len(enrichers) == 0 {
		return nil, model.ErrNoCredentials
	}
	if store == nil {
		return nil, errors.New("pipeline requires a result store")
	}
	def := DefaultOptions()
	if opts.OutboundCapacity < 1 {
		opts.OutboundCapacity = def.OutboundCapacity
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = def.BatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = def.FlushInterval
	}
	return &Pipeline{
		enrichers: enrichers,
		store:     store,
		opts:      opts,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Workers returns the pool size.
func (p *Pipeline) Workers() int { return len(p.enrichers) }

// Run drives src to exhaustion. It returns once the sink has received
// Terminate from every worker (or ctx is cancelled). A non-nil error means
// at least one task failed; the counts are valid either way.
func (p *Pipeline) Run(ctx context.Context, src Source) (Counts, error) {
	n := len(p.enrichers)
	c := &counters{}

	ready := make(chan ReadinessToken, n+1)
	out := make(chan outbound, p.opts.OutboundCapacity)
	batches := make(chan []model.Record, 1)
	workersGone := make(chan struct{})

	workers := make([]*Worker, n)
	slots := make([]workerSlot, n)
	for i, e := range p.enrichers {
		inbound := make(chan model.Record, 1)
		w := &Worker{
			id:       i,
			enricher: e,
			ready:    ready,
			inbound:  inbound,
			out:      out,
			exited:   make(chan struct{}),
			counters: c,
			metrics:  p.metrics,
			logger:   p.logger.With("component", "worker", "worker", i),
		}
		workers[i] = w
		slots[i] = workerSlot{inbound: inbound, exited: w.exited}
	}

	// The feeder stops as soon as the dispatcher stops pulling.
	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()

	d := &Dispatcher{
		batches:     batches,
		ready:       ready,
		slots:       slots,
		workersGone: workersGone,
		counters:    c,
		metrics:     p.metrics,
		logger:      p.logger.With("component", "dispatcher"),
	}
	s := &ResultSink{
		out:           out,
		n:             n,
		store:         p.store,
		batchSize:     p.opts.BatchSize,
		flushInterval: p.opts.FlushInterval,
		counters:      c,
		metrics:       p.metrics,
		logger:        p.logger.With("component", "sink"),
	}

	p.logger.Info("pipeline starting", "workers", n)
	start := time.Now()

	var g errgroup.Group
	g.Go(func() error {
		return feed(feedCtx, ctx, src, batches)
	})
	g.Go(func() error {
		defer stopFeed()
		if err := d.Run(ctx); err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
		return nil
	})
	for _, w := range workers {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	g.Go(func() error {
		for _, w := range workers {
			<-w.exited
		}
		close(workersGone)
		return nil
	})
	g.Go(func() error {
		if err := s.Run(ctx); err != nil {
			return fmt.Errorf("sink: %w", err)
		}
		return nil
	})

	err := g.Wait()
	counts := c.snapshot()
	p.logger.Info("pipeline finished",
		"took", time.Since(start).Round(time.Millisecond),
		"dispatched", counts.Dispatched,
		"enriched", counts.Enriched,
		"abandoned", counts.Abandoned,
		"dropped", counts.Dropped,
		"persisted", counts.Persisted,
		"persist_failures", counts.PersistFailures,
		"error", err,
	)
	return counts, err
}

// feed pulls batches from src until io.EOF and hands them to the dispatcher.
// feedCtx is cancelled when the dispatcher stops; parent is the run context.
func feed(feedCtx, parent context.Context, src Source, batches chan<- []model.Record) error {
	defer close(batches)
	for {
		batch, err := src.Next(feedCtx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if feedCtx.Err() != nil && parent.Err() == nil {
				return nil
			}
			return fmt.Errorf("source: %w", err)
		}

		select {
		case batches <- batch:
		case <-feedCtx.Done():
			return parent.Err()
		}
	}
}
