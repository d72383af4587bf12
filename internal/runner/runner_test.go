package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/synopsis/internal/config"
	"github.com/amishk599/synopsis/internal/model"
	"github.com/amishk599/synopsis/internal/report"
	"github.com/amishk599/synopsis/internal/sink"
	"github.com/amishk599/synopsis/internal/source"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []report.RunSummary
}

func (r *recordingReporter) Report(_ context.Context, s report.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, s)
	return nil
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// enrichmentServer answers every request with a summary naming the title it was given.
func enrichmentServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		title := strings.TrimPrefix(strings.SplitN(req.Messages[1].Content, "\n", 2)[0], "Title: ")
		content, _ := json.Marshal(map[string]any{"summary": "About " + title + ".", "themes": []string{"t"}, "genres": []string{"g"}})
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": string(content)}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T, baseURL string, n int) *config.Config {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "anime_metadata.db")

	meta, err := source.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	var recs []model.Record
	for i := 1; i <= n; i++ {
		recs = append(recs, model.Record{
			ID:          int64(i),
			Title:       model.Title{Romaji: fmt.Sprintf("Show %d", i)},
			Year:        2000 + i%3,
			Description: "A show.",
		})
	}
	require.NoError(t, meta.UpsertRecords(context.Background(), recs))
	require.NoError(t, meta.Close())

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
credentials: [key-a, key-b, key-c]
enrichment:
  base_url: %s
source:
  db_path: %s
sink:
  db_path: %s
  flush_interval: 10ms
`, baseURL, dbPath, dbPath)))
	require.NoError(t, err)
	return cfg
}

func TestRunOnce_EnrichesAndPersists(t *testing.T) {
	var calls atomic.Int32
	srv := enrichmentServer(t, &calls)
	cfg := setup(t, srv.URL, 10)
	rep := &recordingReporter{}

	r := New(cfg, Options{Sleep: noSleep}, srv.Client(), rep, nil, discardLogger())
	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, report.StatusCompleted, sum.Status)
	assert.Equal(t, 3, sum.Workers)
	assert.Equal(t, int64(10), sum.Persisted)
	assert.NotEmpty(t, sum.RunID)
	require.Len(t, rep.reports, 1)
	assert.Equal(t, sum.RunID, rep.reports[0].RunID)

	store, err := sink.NewSQLiteStore(cfg.Sink.DBPath, "")
	require.NoError(t, err)
	defer store.Close()
	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 10)
	assert.Equal(t, "About Show 1.", list[0].Summary)
	assert.Equal(t, sum.RunID, list[0].RunID)

	// A second run finds nothing left to do.
	before := calls.Load()
	sum, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Dispatched)
	assert.Equal(t, before, calls.Load())
}

func TestRunOnce_DryRunPersistsNothing(t *testing.T) {
	var calls atomic.Int32
	srv := enrichmentServer(t, &calls)
	cfg := setup(t, srv.URL, 6)

	r := New(cfg, Options{DryRun: true, Limit: 4, Sleep: noSleep}, srv.Client(), &recordingReporter{}, nil, discardLogger())
	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), sum.Enriched)
	assert.Equal(t, int32(4), calls.Load())

	store, err := sink.NewSQLiteStore(cfg.Sink.DBPath, "")
	require.NoError(t, err)
	defer store.Close()
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnce_LockHeld(t *testing.T) {
	var calls atomic.Int32
	srv := enrichmentServer(t, &calls)
	cfg := setup(t, srv.URL, 2)

	other := flock.New(cfg.Sink.DBPath + ".lock")
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer other.Unlock()

	rep := &recordingReporter{}
	sum, err := New(cfg, Options{Sleep: noSleep}, srv.Client(), rep, nil, discardLogger()).RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, report.StatusFailed, sum.Status)
	assert.Zero(t, calls.Load(), "no worker may start")
	require.Len(t, rep.reports, 1)
	assert.Equal(t, report.StatusFailed, rep.reports[0].Status)
}

func TestRunOnce_SinkUnavailableIsFatal(t *testing.T) {
	var calls atomic.Int32
	srv := enrichmentServer(t, &calls)
	cfg := setup(t, srv.URL, 2)
	cfg.Sink.Backend = "badger"
	cfg.Sink.BadgerDir = filepath.Join(cfg.Sink.DBPath, "not-a-dir") // parent is a file

	_, err := New(cfg, Options{Sleep: noSleep}, srv.Client(), &recordingReporter{}, nil, discardLogger()).RunOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, calls.Load())
}

func TestRunOnce_NoCredentials(t *testing.T) {
	cfg := setup(t, "http://unused", 1)
	cfg.Credentials = nil

	_, err := New(cfg, Options{}, http.DefaultClient, &recordingReporter{}, nil, discardLogger()).RunOnce(context.Background())
	require.Error(t, err)
}

func TestBuildEnrichers_OnePerCredential(t *testing.T) {
	cfg := setup(t, "http://unused", 1)
	assert.Len(t, BuildEnrichers(cfg, http.DefaultClient, nil, discardLogger()), 3)
}
