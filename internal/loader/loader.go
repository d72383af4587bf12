// Package loader populates the metadata store from AniList, one season year
// per pooled task.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/amishk599/synopsis/internal/metrics"
	"github.com/amishk599/synopsis/internal/model"
)

// Fetcher downloads all records of one season year.
type Fetcher interface {
	FetchYear(ctx context.Context, year int) ([]model.Record, error)
}

// RecordStore persists downloaded records.
type RecordStore interface {
	UpsertRecords(ctx context.Context, records []model.Record) error
}

// Summary describes one load.
type Summary struct {
	Years   int
	Failed  int
	Records int
	Elapsed time.Duration
}

// Loader fans year downloads out over an ants pool.
type Loader struct {
	fetcher     Fetcher
	store       RecordStore
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New creates a Loader. concurrency below 1 is treated as 1.
func New(fetcher Fetcher, store RecordStore, concurrency int, m *metrics.Metrics, logger *slog.Logger) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Loader{
		fetcher:     fetcher,
		store:       store,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger.With("component", "loader"),
	}
}

// Load downloads every year in [from, to]. A failing year does not stop the
// others; all per-year errors are joined into the returned error.
func (l *Loader) Load(ctx context.Context, from, to int) (Summary, error) {
	if from > to {
		return Summary{}, fmt.Errorf("year range %d..%d is empty", from, to)
	}

	pool, err := ants.NewPool(l.concurrency)
	if err != nil {
		return Summary{}, fmt.Errorf("creating loader pool: %w", err)
	}
	defer pool.Release()

	start := time.Now()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		records atomic.Int64
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for year := from; year <= to; year++ {
		if ctx.Err() != nil {
			fail(ctx.Err())
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			n, err := l.loadYear(ctx, year)
			if err != nil {
				fail(err)
				return
			}
			records.Add(int64(n))
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submitting year %d: %w", year, err))
		}
	}
	wg.Wait()

	sum := Summary{
		Years:   to - from + 1,
		Failed:  len(errs),
		Records: int(records.Load()),
		Elapsed: time.Since(start),
	}
	l.logger.Info("load finished",
		"years", sum.Years,
		"failed", sum.Failed,
		"records", sum.Records,
		"elapsed", sum.Elapsed.Round(time.Millisecond),
	)
	return sum, errors.Join(errs...)
}

func (l *Loader) loadYear(ctx context.Context, year int) (int, error) {
	records, err := l.fetcher.FetchYear(ctx, year)
	if err != nil {
		l.logger.Error("year download failed", "year", year, "error", err)
		return 0, err
	}
	if err := l.store.UpsertRecords(ctx, records); err != nil {
		l.logger.Error("year store failed", "year", year, "error", err)
		return 0, fmt.Errorf("storing year %d: %w", year, err)
	}
	l.metrics.RecordLoaded(len(records))
	l.logger.Debug("year loaded", "year", year, "records", len(records))
	return len(records), nil
}
