// Package catalog joins the metadata store with persisted results so commands
// can report progress and browse summaries without knowing the sink backend.
package catalog

import (
	"context"
	"fmt"

	"github.com/amishk599/synopsis/internal/model"
	"github.com/amishk599/synopsis/internal/sink"
)

// Lister is the part of a sink.Store the catalog reads.
type Lister interface {
	List(ctx context.Context) ([]sink.Stored, error)
}

// Entry is a metadata record and, when it has been enriched, its result.
type Entry struct {
	Record model.Record
	Result *sink.Stored
}

// Enriched reports whether the entry has a persisted result.
func (e Entry) Enriched() bool { return e.Result != nil }

// YearStats counts the records of one season year.
type YearStats struct {
	Year     int
	Total    int // metadata rows
	Eligible int // rows passing the filter
	Enriched int // rows with a persisted result
	Pending  int // eligible rows without a result
}

// Catalog is a read-only snapshot of persisted results over a live metadata store.
type Catalog struct {
	store   model.PartitionStore
	filter  model.RecordFilter
	results map[int64]sink.Stored
}

// New snapshots every persisted result. filter may be nil.
func New(ctx context.Context, store model.PartitionStore, results Lister, filter model.RecordFilter) (*Catalog, error) {
	stored, err := results.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	byID := make(map[int64]sink.Stored, len(stored))
	for _, st := range stored {
		byID[st.ID] = st
	}
	return &Catalog{store: store, filter: filter, results: byID}, nil
}

// Results returns the number of persisted results in the snapshot.
func (c *Catalog) Results() int { return len(c.results) }

// Years returns per-year counts in ascending order. Years with no metadata
// rows are omitted.
func (c *Catalog) Years(ctx context.Context) ([]YearStats, error) {
	lo, hi, ok, err := c.store.PartitionRange(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading partition bounds: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var out []YearStats
	for year := lo; year <= hi; year++ {
		records, err := c.store.QueryPartition(ctx, year)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			continue
		}
		ys := YearStats{Year: year, Total: len(records)}
		for _, rec := range records {
			_, done := c.results[rec.ID]
			if done {
				ys.Enriched++
			}
			if c.filter == nil || c.filter.Match(rec) {
				ys.Eligible++
				if !done {
					ys.Pending++
				}
			}
		}
		out = append(out, ys)
	}
	return out, nil
}

// Year splits one season year into enriched entries and eligible entries
// still waiting for enrichment. Both are ordered by ID.
func (c *Catalog) Year(ctx context.Context, year int) (enriched, pending []Entry, err error) {
	records, err := c.store.QueryPartition(ctx, year)
	if err != nil {
		return nil, nil, err
	}
	for _, rec := range records {
		if st, ok := c.results[rec.ID]; ok {
			enriched = append(enriched, Entry{Record: rec, Result: &st})
			continue
		}
		if c.filter == nil || c.filter.Match(rec) {
			pending = append(pending, Entry{Record: rec})
		}
	}
	return enriched, pending, nil
}

// Totals sums a slice of YearStats.
func Totals(years []YearStats) YearStats {
	var t YearStats
	for _, y := range years {
		t.Total += y.Total
		t.Eligible += y.Eligible
		t.Enriched += y.Enriched
		t.Pending += y.Pending
	}
	return t
}
