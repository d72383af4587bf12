package sink

import (
	"fmt"
	"log/slog"

	"github.com/amishk599/synopsis/internal/config"
)

// Open returns the store selected by cfg.Backend.
func Open(cfg config.SinkConfig, runID string, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.DBPath, runID)
	case "badger":
		return NewBadgerStore(cfg.BadgerDir, runID, logger)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Backend)
	}
}
