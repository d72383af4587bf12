// Package sink holds the stores enriched results are persisted to.
package sink

import (
	"context"
	"time"

	"github.com/amishk599/synopsis/internal/model"
)

// Stored is an enriched result as it sits in a store.
type Stored struct {
	model.EnrichedResult
	RunID      string
	EnrichedAt time.Time
}

// Store is a ResultStore that can also be listed and closed.
type Store interface {
	model.ResultStore
	List(ctx context.Context) ([]Stored, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
