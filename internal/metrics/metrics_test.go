package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordDispatched()
	m.RecordEnriched(0, time.Second)
	m.RecordAbandoned(0, "unparseable")
	m.RecordPersisted(3)
	m.RecordPersistFailures(1)
	m.RecordRun("completed")
	m.RecordLoaded(10)
}

func TestCounters(t *testing.T) {
	m := New()
	m.RecordDispatched()
	m.RecordDispatched()
	m.RecordEnriched(1, 2*time.Second)
	m.RecordAbandoned(0, "retries_exhausted")
	m.RecordPersisted(4)
	m.RecordRun("failed")

	if got := testutil.ToFloat64(m.dispatched); got != 2 {
		t.Errorf("dispatched = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.enriched.WithLabelValues("1")); got != 1 {
		t.Errorf("enriched{worker=1} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.abandoned.WithLabelValues("0", "retries_exhausted")); got != 1 {
		t.Errorf("abandoned = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.persisted); got != 4 {
		t.Errorf("persisted = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("failed")); got != 1 {
		t.Errorf("runs{failed} = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordPersisted(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "synopsis_results_persisted_total 1") {
		t.Errorf("metrics output missing persisted counter:\n%s", body)
	}
}
