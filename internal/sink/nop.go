package sink

import (
	"context"
	"log/slog"

	"github.com/amishk599/synopsis/internal/model"
)

// NopStore is used in dry-run mode. It logs every result instead of persisting
// it, and never reports a record as already enriched.
type NopStore struct {
	logger *slog.Logger
}

func NewNopStore(logger *slog.Logger) *NopStore {
	return &NopStore{logger: logger.With("component", "dry_run")}
}

func (s *NopStore) Upsert(_ context.Context, results []model.EnrichedResult) error {
	for _, r := range results {
		s.logger.Info("would persist", "record_id", r.ID, "summary", r.Summary, "themes", r.Themes, "genres", r.Genres)
	}
	return nil
}

func (s *NopStore) Has(context.Context, int64) (bool, error) { return false, nil }
func (s *NopStore) List(context.Context) ([]Stored, error)   { return nil, nil }
func (s *NopStore) Count(context.Context) (int, error)       { return 0, nil }
func (s *NopStore) Close() error                             { return nil }
