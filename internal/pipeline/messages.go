package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/amishk599/synopsis/internal/model"
)

// ErrWorkersExited is returned by the dispatcher when every worker has gone
// away while records were still waiting to be assigned.
var ErrWorkersExited = errors.New("all enrichment workers exited")

// Source yields batches of records and returns io.EOF once exhausted.
type Source interface {
	Next(ctx context.Context) ([]model.Record, error)
}

// ReadinessToken is sent by an idle worker to ask the dispatcher for one record.
type ReadinessToken struct {
	Worker int
}

// outbound is what workers send to the sink. Exactly one message per worker
// has Terminate set, and it is the last message that worker sends.
type outbound struct {
	Worker    int
	Result    model.EnrichedResult
	Terminate bool
}

// Counts summarizes what happened to records during one run.
type Counts struct {
	Dispatched      int64 // assigned to a worker
	Enriched        int64 // produced a result
	Abandoned       int64 // dropped by a worker (retries exhausted, unparseable, other)
	Dropped         int64 // never reached a worker because it had exited
	Persisted       int64 // written to the sink store
	PersistFailures int64 // rejected by the sink store
	Terminated      int64 // workers whose Terminate reached the sink
}

type counters struct {
	dispatched, enriched, abandoned, dropped atomic.Int64
	persisted, persistFailures, terminated   atomic.Int64
}

func (c *counters) snapshot() Counts {
	return Counts{
		Dispatched:      c.dispatched.Load(),
		Enriched:        c.enriched.Load(),
		Abandoned:       c.abandoned.Load(),
		Dropped:         c.dropped.Load(),
		Persisted:       c.persisted.Load(),
		PersistFailures: c.persistFailures.Load(),
		Terminated:      c.terminated.Load(),
	}
}
