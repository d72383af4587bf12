package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/synopsis/internal/enrich"
	"github.com/amishk599/synopsis/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSleeper returns immediately and remembers every requested delay.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

var testPolicy = Policy{MaxAttempts: 3, FailureDelay: 10 * time.Second, RateLimitDelay: 10 * time.Second}

// mockEnricher calls a function on each invocation, tracking call count.
type mockEnricher struct {
	calls int
	fn    func(call int) (model.EnrichedResult, error)
}

func (m *mockEnricher) Enrich(_ context.Context, rec model.Record) (model.EnrichedResult, error) {
	m.calls++
	return m.fn(m.calls)
}

func newEnricher(inner model.Enricher, s *recordingSleeper) *RetryEnricher {
	return NewRetryEnricher(inner, New(testPolicy, discardLogger(), WithSleeper(s.sleep)))
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	mock := &mockEnricher{fn: func(int) (model.EnrichedResult, error) {
		return model.EnrichedResult{ID: 1, Summary: "ok"}, nil
	}}
	s := &recordingSleeper{}

	got, err := newEnricher(mock, s).Enrich(context.Background(), model.Record{ID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Summary != "ok" {
		t.Errorf("Summary = %q", got.Summary)
	}
	if mock.calls != 1 || len(s.delays) != 0 {
		t.Errorf("calls = %d, sleeps = %v", mock.calls, s.delays)
	}
}

func TestRetry_FailureThenSuccess(t *testing.T) {
	mock := &mockEnricher{fn: func(call int) (model.EnrichedResult, error) {
		if call < 3 {
			return model.EnrichedResult{}, &model.HTTPError{StatusCode: 503}
		}
		return model.EnrichedResult{ID: 1, Summary: "third time"}, nil
	}}
	s := &recordingSleeper{}

	got, err := newEnricher(mock, s).Enrich(context.Background(), model.Record{ID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Summary != "third time" {
		t.Errorf("Summary = %q", got.Summary)
	}
	if mock.calls != 3 {
		t.Errorf("calls = %d, want 3", mock.calls)
	}
}

func TestRetry_RateLimitDoesNotSpendBudget(t *testing.T) {
	// Two real failures, then a long run of 429s, then success. With a budget
	// of 3 the record must still succeed.
	mock := &mockEnricher{fn: func(call int) (model.EnrichedResult, error) {
		switch {
		case call <= 2:
			return model.EnrichedResult{}, errors.New("connection reset")
		case call <= 52:
			return model.EnrichedResult{}, &model.HTTPError{StatusCode: 429}
		default:
			return model.EnrichedResult{ID: 9, Summary: "finally"}, nil
		}
	}}
	s := &recordingSleeper{}

	got, err := newEnricher(mock, s).Enrich(context.Background(), model.Record{ID: 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Summary != "finally" || mock.calls != 53 {
		t.Errorf("got %+v after %d calls", got, mock.calls)
	}
	for i, d := range s.delays[2:] {
		if d != 10*time.Second {
			t.Fatalf("rate-limit sleep %d = %v, want default 10s", i, d)
		}
	}
}

func TestRetry_CancelledDuringRateLimitWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockEnricher{fn: func(call int) (model.EnrichedResult, error) {
		if call == 5 {
			cancel()
		}
		return model.EnrichedResult{}, &model.HTTPError{StatusCode: 429, RetryAfter: time.Second}
	}}
	s := &recordingSleeper{}

	_, err := newEnricher(mock, s).Enrich(ctx, model.Record{ID: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, model.ErrRetriesExhausted) {
		t.Error("rate limiting must never exhaust the budget")
	}
}

func TestRetry_UnparseableIsNotRetried(t *testing.T) {
	mock := &mockEnricher{fn: func(int) (model.EnrichedResult, error) {
		return model.EnrichedResult{}, fmt.Errorf("%w: missing summary", model.ErrUnparseable)
	}}
	s := &recordingSleeper{}

	_, err := newEnricher(mock, s).Enrich(context.Background(), model.Record{ID: 1})
	if !errors.Is(err, model.ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}
	if mock.calls != 1 || len(s.delays) != 0 {
		t.Errorf("calls = %d, sleeps = %v; want exactly one call and no sleep", mock.calls, s.delays)
	}
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// The following tests drive the real HTTP client against a simulated service.

func newHTTPEnricher(t *testing.T, handler http.HandlerFunc, s *recordingSleeper) *RetryEnricher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := enrich.NewClient(enrich.Options{BaseURL: srv.URL, Model: "m", MaxTokens: 16}, "key", srv.Client())
	return newEnricher(client, s)
}

func TestRetry_Always429WithRetryAfter(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &recordingSleeper{}
	e := newHTTPEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 25 {
			cancel()
		}
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}, s)

	_, err := e.Enrich(ctx, model.Record{ID: 1, Description: "d"})
	if errors.Is(err, model.ErrRetriesExhausted) {
		t.Fatal("a rate-limited record must not be abandoned")
	}
	if calls.Load() != 25 {
		t.Errorf("calls = %d, want 25 (retrying until cancelled)", calls.Load())
	}
	for _, d := range s.delays {
		if d != time.Second {
			t.Fatalf("sleep = %v, want Retry-After 1s", d)
		}
	}
}

func TestRetry_Always500AbandonsAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	s := &recordingSleeper{}
	e := newHTTPEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, s)

	_, err := e.Enrich(context.Background(), model.Record{ID: 1, Description: "d"})
	if !errors.Is(err, model.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want exactly 3", calls.Load())
	}
	want := []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second}
	if fmt.Sprint(s.delays) != fmt.Sprint(want) {
		t.Errorf("sleeps = %v, want %v", s.delays, want)
	}
}

func TestRetry_MalformedBodyAbandonsAfterOneAttempt(t *testing.T) {
	var calls atomic.Int32
	s := &recordingSleeper{}
	e := newHTTPEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"choices": [ not json`))
	}, s)

	_, err := e.Enrich(context.Background(), model.Record{ID: 1, Description: "d"})
	if !errors.Is(err, model.ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want exactly 1", calls.Load())
	}
}

func TestRetry_ClientTimeoutSpendsBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	httpClient := srv.Client()
	httpClient.Timeout = 50 * time.Millisecond
	client := enrich.NewClient(enrich.Options{BaseURL: srv.URL, Model: "m", MaxTokens: 16}, "key", httpClient)
	s := &recordingSleeper{}

	_, err := newEnricher(client, s).Enrich(context.Background(), model.Record{ID: 1, Description: "d"})
	if !errors.Is(err, model.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	want := []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second}
	if fmt.Sprint(s.delays) != fmt.Sprint(want) {
		t.Errorf("sleeps = %v, want %v", s.delays, want)
	}
}

func TestRetry_CancelledReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockEnricher{fn: func(int) (model.EnrichedResult, error) {
		cancel()
		return model.EnrichedResult{}, &model.HTTPError{StatusCode: 503}
	}}
	s := &recordingSleeper{}

	_, err := newEnricher(mock, s).Enrich(ctx, model.Record{ID: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		t.Errorf("cancellation must not surface the call error, got %v", err)
	}
	if mock.calls != 1 || len(s.delays) != 0 {
		t.Errorf("calls = %d, sleeps = %v", mock.calls, s.delays)
	}
}
