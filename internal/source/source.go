package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/amishk599/synopsis/internal/model"
)

// Seen reports whether a record already has a persisted result.
type Seen interface {
	Has(ctx context.Context, id int64) (bool, error)
}

// Options narrows what a MetadataSource emits. The zero value emits every record.
type Options struct {
	Filter   model.RecordFilter // nil accepts everything
	Seen     Seen               // nil treats nothing as already enriched
	YearFrom int                // 0 = store minimum
	YearTo   int                // 0 = store maximum
	Limit    int                // 0 = unlimited
}

// MetadataSource walks a PartitionStore one season year at a time, in ascending
// order, and yields the records of each year that still need enrichment. It is
// not safe for concurrent use.
type MetadataSource struct {
	store  model.PartitionStore
	opts   Options
	logger *slog.Logger

	year    int
	maxYear int
	emitted int
	done    bool
}

// NewMetadataSource reads the partition bounds up front. A failure to read
// them is returned as an error so the caller can abort before starting workers.
// An empty store is not an error: the source is simply exhausted from the start.
func NewMetadataSource(ctx context.Context, store model.PartitionStore, opts Options, logger *slog.Logger) (*MetadataSource, error) {
	lo, hi, ok, err := store.PartitionRange(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading partition bounds: %w", err)
	}

	s := &MetadataSource{
		store:  store,
		opts:   opts,
		logger: logger.With("component", "source"),
		done:   !ok,
	}
	if !ok {
		s.logger.Info("metadata store is empty")
		return s, nil
	}

	if opts.YearFrom > lo {
		lo = opts.YearFrom
	}
	if opts.YearTo != 0 && opts.YearTo < hi {
		hi = opts.YearTo
	}
	s.year, s.maxYear = lo, hi
	if lo > hi {
		s.done = true
	}

	s.logger.Debug("partition range", "from", lo, "to", hi)
	return s, nil
}

// Next returns the next non-empty batch. Once the partition space is exhausted
// it returns io.EOF, and keeps returning io.EOF on every later call.
func (s *MetadataSource) Next(ctx context.Context) ([]model.Record, error) {
	for !s.done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		year := s.year
		s.year++
		if s.year > s.maxYear {
			s.done = true
		}

		records, err := s.store.QueryPartition(ctx, year)
		if err != nil {
			return nil, err
		}

		batch, err := s.eligible(ctx, records)
		if err != nil {
			return nil, err
		}

		if s.opts.Limit > 0 && s.emitted+len(batch) >= s.opts.Limit {
			batch = batch[:s.opts.Limit-s.emitted]
			s.done = true
		}
		s.emitted += len(batch)

		s.logger.Debug("partition read", "year", year, "rows", len(records), "eligible", len(batch))
		if len(batch) == 0 {
			continue
		}
		return batch, nil
	}
	return nil, io.EOF
}

func (s *MetadataSource) eligible(ctx context.Context, records []model.Record) ([]model.Record, error) {
	batch := records[:0:0]
	for _, rec := range records {
		if s.opts.Filter != nil && !s.opts.Filter.Match(rec) {
			continue
		}
		if s.opts.Seen != nil {
			seen, err := s.opts.Seen.Has(ctx, rec.ID)
			if err != nil {
				return nil, fmt.Errorf("checking enriched status for %d: %w", rec.ID, err)
			}
			if seen {
				continue
			}
		}
		batch = append(batch, rec)
	}
	return batch, nil
}
