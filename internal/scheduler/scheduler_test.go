package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/synopsis/internal/report"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) RunOnce(_ context.Context) (report.RunSummary, error) {
	r.calls.Add(1)
	return report.RunSummary{RunID: "r"}, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsImmediatelyThenOnInterval(t *testing.T) {
	r := &countingRunner{}
	s := NewScheduler(r, 30*time.Millisecond, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c := r.calls.Load(); c < 2 {
		t.Errorf("expected at least 2 runs, got %d", c)
	}
}

func TestScheduler_ContinuesAfterFailedRun(t *testing.T) {
	r := &countingRunner{err: errors.New("sink unavailable")}
	s := NewScheduler(r, 20*time.Millisecond, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c := r.calls.Load(); c < 2 {
		t.Errorf("expected the loop to keep going after a failure, got %d runs", c)
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	r := &countingRunner{}
	s := NewScheduler(r, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if c := r.calls.Load(); c != 1 {
		t.Errorf("calls = %d, want 1", c)
	}
}
