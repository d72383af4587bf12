package sink

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/amishk599/synopsis/internal/model"
)

const summaryPrefix = "summary:"

// BadgerStore keeps enriched results in an embedded Badger key-value store,
// one JSON value per record ID.
type BadgerStore struct {
	db    *badger.DB
	runID string
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// badgerValue is the JSON shape stored under each key.
type badgerValue struct {
	Summary    string    `json:"summary"`
	Themes     []string  `json:"themes"`
	Genres     []string  `json:"genres"`
	RunID      string    `json:"run_id"`
	EnrichedAt time.Time `json:"enriched_at"`
}

// NewBadgerStore opens a Badger database in dir, creating the directory if needed.
// An empty dir opens an in-memory store.
func NewBadgerStore(dir, runID string, logger *slog.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating badger dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger.With("component", "badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerStore{db: db, runID: runID}, nil
}

func summaryKey(id int64) []byte {
	key := make([]byte, len(summaryPrefix)+8)
	copy(key, summaryPrefix)
	binary.BigEndian.PutUint64(key[len(summaryPrefix):], uint64(id))
	return key
}

// Upsert writes all results in one transaction. Re-upserting an ID overwrites it.
func (s *BadgerStore) Upsert(ctx context.Context, results []model.EnrichedResult) error {
	if len(results) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.db.Update(func(tx *badger.Txn) error {
		for _, r := range results {
			val, err := json.Marshal(badgerValue{
				Summary:    r.Summary,
				Themes:     r.Themes,
				Genres:     r.Genres,
				RunID:      s.runID,
				EnrichedAt: now,
			})
			if err != nil {
				return fmt.Errorf("encoding summary %d: %w", r.ID, err)
			}
			if err := tx.Set(summaryKey(r.ID), val); err != nil {
				return fmt.Errorf("writing summary %d: %w", r.ID, err)
			}
		}
		return nil
	})
}

// Has returns true if a summary for id has been persisted.
func (s *BadgerStore) Has(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := s.db.View(func(tx *badger.Txn) error {
		_, err := tx.Get(summaryKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking summary for %d: %w", id, err)
	}
	return found, nil
}

// List returns every persisted result ordered by ID.
func (s *BadgerStore) List(ctx context.Context) ([]Stored, error) {
	var out []Stored
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(summaryPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			id := int64(binary.BigEndian.Uint64(item.Key()[len(summaryPrefix):]))

			var v badgerValue
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return fmt.Errorf("decoding summary %d: %w", id, err)
			}
			out = append(out, Stored{
				EnrichedResult: model.EnrichedResult{ID: id, Summary: v.Summary, Themes: v.Themes, Genres: v.Genres},
				RunID:          v.RunID,
				EnrichedAt:     v.EnrichedAt,
			})
		}
		return nil
	})
	return out, err
}

// Count returns the number of persisted results.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(summaryPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
