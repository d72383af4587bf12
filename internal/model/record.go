package model

import (
	"context"
	"strings"
)

// Title holds the title variants a metadata record may carry.
type Title struct {
	Romaji  string // may be empty
	English string // may be empty
}

// Display returns the English title when present, otherwise the romaji title.
func (t Title) Display() string {
	if t.English != "" {
		return t.English
	}
	return t.Romaji
}

// Record is one metadata row read from the backing store. Immutable once read.
type Record struct {
	ID          int64
	Title       Title
	Season      string   // WINTER, SPRING, ... (may be empty)
	Year        int      // partition key
	Description string   // may be empty
	Popularity  *int     // nullable
	MeanScore   *int     // nullable
	Genres      []string // nullable
}

// HasGenre reports whether the record lists genre (case-insensitive).
func (r Record) HasGenre(genre string) bool {
	for _, g := range r.Genres {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}

// EnrichedResult is the output of a successful enrichment for one Record.
type EnrichedResult struct {
	ID      int64 // matches Record.ID
	Summary string
	Themes  []string
	Genres  []string
}

// Enricher turns a Record into an EnrichedResult. Implementations are bound to
// a single credential and are only ever called from one goroutine.
type Enricher interface {
	Enrich(ctx context.Context, rec Record) (EnrichedResult, error)
}

// PartitionStore is the metadata store the source iterates.
type PartitionStore interface {
	// PartitionRange returns the inclusive year range. ok is false when the store is empty.
	PartitionRange(ctx context.Context) (min, max int, ok bool, err error)
	QueryPartition(ctx context.Context, year int) ([]Record, error)
}

// ResultStore persists enriched results. Upsert is idempotent per ID.
type ResultStore interface {
	Upsert(ctx context.Context, results []EnrichedResult) error
	Has(ctx context.Context, id int64) (bool, error)
}

// RecordFilter decides whether a record is worth enriching.
type RecordFilter interface {
	Match(rec Record) bool
}
