package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amishk599/synopsis/internal/model"
	"github.com/amishk599/synopsis/internal/source"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps enriched results in the anime_summary table. By default it
// shares a database file with the metadata store.
type SQLiteStore struct {
	db    *sql.DB
	runID string
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// anime_summary table exists. Rows written through this store are tagged with runID.
func NewSQLiteStore(dbPath, runID string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", source.DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS anime_summary (
		id          INTEGER PRIMARY KEY,
		summary     TEXT NOT NULL,
		themes      TEXT,
		genres      TEXT,
		run_id      TEXT,
		enriched_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating anime_summary table: %w", err)
	}

	return &SQLiteStore{db: db, runID: runID}, nil
}

// Upsert writes results in a single transaction. Re-upserting an ID overwrites it.
func (s *SQLiteStore) Upsert(ctx context.Context, results []model.EnrichedResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO anime_summary (id, summary, themes, genres, run_id, enriched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary     = excluded.summary,
			themes      = excluded.themes,
			genres      = excluded.genres,
			run_id      = excluded.run_id,
			enriched_at = excluded.enriched_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range results {
		themes, err := json.Marshal(nonNil(r.Themes))
		if err != nil {
			return fmt.Errorf("encoding themes for %d: %w", r.ID, err)
		}
		genres, err := json.Marshal(nonNil(r.Genres))
		if err != nil {
			return fmt.Errorf("encoding genres for %d: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Summary, string(themes), string(genres), s.runID, now); err != nil {
			return fmt.Errorf("upserting summary %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// Has returns true if a summary for id has been persisted.
func (s *SQLiteStore) Has(ctx context.Context, id int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM anime_summary WHERE id = ?", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking summary for %d: %w", id, err)
	}
	return true, nil
}

// List returns every persisted result ordered by ID.
func (s *SQLiteStore) List(ctx context.Context) ([]Stored, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, summary, themes, genres, run_id, enriched_at FROM anime_summary ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing summaries: %w", err)
	}
	defer rows.Close()

	var out []Stored
	for rows.Next() {
		var (
			st             Stored
			themes, genres sql.NullString
			runID          sql.NullString
			enrichedAt     sql.NullTime
		)
		if err := rows.Scan(&st.ID, &st.Summary, &themes, &genres, &runID, &enrichedAt); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		if err := decodeList(themes, &st.Themes); err != nil {
			return nil, fmt.Errorf("decoding themes for %d: %w", st.ID, err)
		}
		if err := decodeList(genres, &st.Genres); err != nil {
			return nil, fmt.Errorf("decoding genres for %d: %w", st.ID, err)
		}
		st.RunID = runID.String
		st.EnrichedAt = enrichedAt.Time
		out = append(out, st)
	}
	return out, rows.Err()
}

// Count returns the number of persisted results.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM anime_summary").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting summaries: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeList(raw sql.NullString, dst *[]string) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dst)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
