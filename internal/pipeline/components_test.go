package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/synopsis/internal/model"
)

func newTestDispatcher(n int) (*Dispatcher, chan []model.Record, chan ReadinessToken, []chan model.Record, []chan struct{}) {
	batches := make(chan []model.Record, 1)
	ready := make(chan ReadinessToken, n+1)
	inbounds := make([]chan model.Record, n)
	exits := make([]chan struct{}, n)
	slots := make([]workerSlot, n)
	for i := range slots {
		inbounds[i] = make(chan model.Record, 1)
		exits[i] = make(chan struct{})
		slots[i] = workerSlot{inbound: inbounds[i], exited: exits[i]}
	}
	d := &Dispatcher{
		batches:     batches,
		ready:       ready,
		slots:       slots,
		workersGone: make(chan struct{}),
		counters:    &counters{},
		logger:      discardLogger(),
	}
	return d, batches, ready, inbounds, exits
}

func TestDispatcher_WaitsForReadiness(t *testing.T) {
	d, batches, ready, inbounds, _ := newTestDispatcher(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	batches <- records(1, 2)

	// No token yet: nothing may be assigned.
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, inbounds[0])
	assert.Empty(t, inbounds[1])

	ready <- ReadinessToken{Worker: 1}
	select {
	case rec := <-inbounds[1]:
		assert.Equal(t, int64(1), rec.ID)
	case <-time.After(time.Second):
		t.Fatal("record not assigned after readiness token")
	}
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, inbounds[0], "worker 0 never asked for work")
	assert.Empty(t, inbounds[1], "one token buys one record")

	ready <- ReadinessToken{Worker: 0}
	select {
	case rec := <-inbounds[0]:
		assert.Equal(t, int64(2), rec.ID)
	case <-time.After(time.Second):
		t.Fatal("second record not assigned")
	}

	close(batches)
	require.NoError(t, <-done)

	// Terminate is a closed inbound.
	for i, in := range inbounds {
		_, ok := <-in
		assert.False(t, ok, "inbound %d should be closed", i)
	}
	assert.Equal(t, int64(2), d.counters.dispatched.Load())
}

func TestDispatcher_DropsRecordForExitedWorker(t *testing.T) {
	d, batches, ready, inbounds, exits := newTestDispatcher(2)

	close(exits[0])
	ready <- ReadinessToken{Worker: 0}
	ready <- ReadinessToken{Worker: 1}
	batches <- records(1, 2)
	close(batches)

	require.NoError(t, d.Run(context.Background()))

	rec, ok := <-inbounds[1]
	require.True(t, ok)
	assert.Equal(t, int64(2), rec.ID, "the next record goes to the live worker")
	assert.Equal(t, int64(1), d.counters.dropped.Load())
	assert.Equal(t, int64(1), d.counters.dispatched.Load())
}

func TestDispatcher_ReturnsWhenAllWorkersGone(t *testing.T) {
	d, batches, _, _, _ := newTestDispatcher(1)
	gone := make(chan struct{})
	d.workersGone = gone
	close(gone)
	batches <- records(1, 1)

	assert.ErrorIs(t, d.Run(context.Background()), ErrWorkersExited)
}

func TestWorker_AnnouncesBeforeReceiving(t *testing.T) {
	ready := make(chan ReadinessToken, 2)
	inbound := make(chan model.Record, 1)
	out := make(chan outbound, 4)
	w := &Worker{
		id:       3,
		enricher: enricherFunc(func(_ context.Context, rec model.Record) (model.EnrichedResult, error) { return summarize(rec), nil }),
		ready:    ready,
		inbound:  inbound,
		out:      out,
		exited:   make(chan struct{}),
		counters: &counters{},
		logger:   discardLogger(),
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	tok := <-ready
	assert.Equal(t, 3, tok.Worker)
	inbound <- records(7, 7)[0]

	msg := <-out
	assert.False(t, msg.Terminate)
	assert.Equal(t, int64(7), msg.Result.ID)

	// Ready again for the next cycle, then told to stop.
	<-ready
	close(inbound)
	require.NoError(t, <-done)

	msg = <-out
	assert.True(t, msg.Terminate)
	assert.Equal(t, 3, msg.Worker)
	_, open := <-w.exited
	assert.False(t, open)
}

func TestResultSink_WaitsForEveryTerminate(t *testing.T) {
	out := make(chan outbound, 8)
	store := newMemStore()
	s := &ResultSink{
		out:           out,
		n:             3,
		store:         store,
		batchSize:     10,
		flushInterval: time.Hour,
		counters:      &counters{},
		logger:        discardLogger(),
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	out <- outbound{Worker: 0, Terminate: true}
	out <- outbound{Worker: 0, Terminate: true} // duplicates count once
	out <- outbound{Worker: 1, Result: model.EnrichedResult{ID: 11, Summary: "late"}}
	out <- outbound{Worker: 2, Terminate: true}

	select {
	case <-done:
		t.Fatal("sink finished before worker 1 terminated")
	case <-time.After(50 * time.Millisecond):
	}

	out <- outbound{Worker: 1, Result: model.EnrichedResult{ID: 12, Summary: "later"}}
	out <- outbound{Worker: 1, Terminate: true}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sink did not finish after all workers terminated")
	}

	assert.Equal(t, []int64{11, 12}, store.ids())
	assert.Equal(t, int64(3), s.counters.terminated.Load())
}

func TestResultSink_FlushesOnCancel(t *testing.T) {
	out := make(chan outbound, 8)
	store := newMemStore()
	s := &ResultSink{
		out:           out,
		n:             1,
		store:         store,
		batchSize:     10,
		flushInterval: time.Hour,
		counters:      &counters{},
		logger:        discardLogger(),
	}

	out <- outbound{Worker: 0, Result: model.EnrichedResult{ID: 1, Summary: "kept"}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []int64{1}, store.ids())
}
