package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/amishk599/synopsis/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore holds anime metadata rows keyed by AniList ID and partitioned by season year.
type SQLiteStore struct {
	db *sql.DB
}

// DSN returns the connection string used for every SQLite file synopsis opens.
// WAL plus a busy timeout lets the metadata and summary tables share one file.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// anime_metadata table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS anime_metadata (
		id            INTEGER PRIMARY KEY,
		romaji_title  TEXT,
		english_title TEXT,
		season        TEXT,
		season_year   INTEGER NOT NULL,
		description   TEXT,
		popularity    INTEGER,
		mean_score    INTEGER,
		genres        TEXT
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating anime_metadata table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_anime_metadata_year ON anime_metadata (season_year)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating season_year index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// PartitionRange returns the smallest and largest season year in the store.
// ok is false when the table is empty.
func (s *SQLiteStore) PartitionRange(ctx context.Context) (int, int, bool, error) {
	var lo, hi sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MIN(season_year), MAX(season_year) FROM anime_metadata").Scan(&lo, &hi)
	if err != nil {
		return 0, 0, false, fmt.Errorf("reading partition range: %w", err)
	}
	if !lo.Valid || !hi.Valid {
		return 0, 0, false, nil
	}
	return int(lo.Int64), int(hi.Int64), true, nil
}

const selectColumns = `id, romaji_title, english_title, season, season_year, description, popularity, mean_score, genres`

// QueryPartition returns every record of the given season year ordered by ID.
// No filtering is applied here.
func (s *SQLiteStore) QueryPartition(ctx context.Context, year int) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM anime_metadata WHERE season_year = ? ORDER BY id", year)
	if err != nil {
		return nil, fmt.Errorf("querying partition %d: %w", year, err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning partition %d: %w", year, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating partition %d: %w", year, err)
	}
	return records, nil
}

// Get returns the record with the given ID. ok is false if it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (model.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM anime_metadata WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, false, nil
	}
	if err != nil {
		return model.Record{}, false, fmt.Errorf("reading record %d: %w", id, err)
	}
	return rec, true, nil
}

// UpsertRecords inserts records, overwriting any existing row with the same ID.
func (s *SQLiteStore) UpsertRecords(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO anime_metadata (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			romaji_title  = excluded.romaji_title,
			english_title = excluded.english_title,
			season        = excluded.season,
			season_year   = excluded.season_year,
			description   = excluded.description,
			popularity    = excluded.popularity,
			mean_score    = excluded.mean_score,
			genres        = excluded.genres`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ID,
			nullString(r.Title.Romaji),
			nullString(r.Title.English),
			nullString(r.Season),
			r.Year,
			nullString(r.Description),
			nullInt(r.Popularity),
			nullInt(r.MeanScore),
			nullString(strings.Join(r.Genres, ",")),
		)
		if err != nil {
			return fmt.Errorf("upserting record %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// Count returns the total number of metadata rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM anime_metadata").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting metadata rows: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (model.Record, error) {
	var (
		rec                                  model.Record
		romaji, english, season, desc, genre sql.NullString
		popularity, meanScore                sql.NullInt64
	)
	if err := sc.Scan(&rec.ID, &romaji, &english, &season, &rec.Year, &desc, &popularity, &meanScore, &genre); err != nil {
		return model.Record{}, err
	}
	rec.Title = model.Title{Romaji: romaji.String, English: english.String}
	rec.Season = season.String
	rec.Description = desc.String
	if popularity.Valid {
		v := int(popularity.Int64)
		rec.Popularity = &v
	}
	if meanScore.Valid {
		v := int(meanScore.Int64)
		rec.MeanScore = &v
	}
	if genre.String != "" {
		rec.Genres = strings.Split(genre.String, ",")
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
