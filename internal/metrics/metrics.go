// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one process. All methods are safe on a nil
// receiver so callers never need to check whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	dispatched      prometheus.Counter
	enriched        *prometheus.CounterVec
	abandoned       *prometheus.CounterVec
	persisted       prometheus.Counter
	persistFailures prometheus.Counter
	enrichDuration  *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	loadedRecords   prometheus.Counter
}

// New registers the pipeline collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		dispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "synopsis_records_dispatched_total",
			Help: "Records handed to an enrichment worker.",
		}),
		enriched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synopsis_records_enriched_total",
			Help: "Records enriched successfully, by worker.",
		}, []string{"worker"}),
		abandoned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synopsis_records_abandoned_total",
			Help: "Records dropped without a result, by worker and reason.",
		}, []string{"worker", "reason"}),
		persisted: f.NewCounter(prometheus.CounterOpts{
			Name: "synopsis_results_persisted_total",
			Help: "Enriched results written to the sink store.",
		}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "synopsis_results_persist_failures_total",
			Help: "Enriched results lost because the sink store rejected them.",
		}),
		enrichDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synopsis_enrich_duration_seconds",
			Help:    "Time spent on one record including retries and rate-limit waits.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12), // 250ms to ~8.5min
		}, []string{"worker"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synopsis_runs_total",
			Help: "Pipeline runs by final status.",
		}, []string{"status"}),
		loadedRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "synopsis_metadata_records_loaded_total",
			Help: "Metadata records downloaded and upserted by the loader.",
		}),
	}
}

func (m *Metrics) RecordDispatched() {
	if m == nil {
		return
	}
	m.dispatched.Inc()
}

func (m *Metrics) RecordEnriched(worker int, took time.Duration) {
	if m == nil {
		return
	}
	w := strconv.Itoa(worker)
	m.enriched.WithLabelValues(w).Inc()
	m.enrichDuration.WithLabelValues(w).Observe(took.Seconds())
}

// RecordAbandoned counts a dropped record. reason is a short fixed token such
// as "unparseable", "retries_exhausted" or "worker_gone".
func (m *Metrics) RecordAbandoned(worker int, reason string) {
	if m == nil {
		return
	}
	m.abandoned.WithLabelValues(strconv.Itoa(worker), reason).Inc()
}

func (m *Metrics) RecordPersisted(n int) {
	if m == nil {
		return
	}
	m.persisted.Add(float64(n))
}

func (m *Metrics) RecordPersistFailures(n int) {
	if m == nil {
		return
	}
	m.persistFailures.Add(float64(n))
}

func (m *Metrics) RecordRun(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordLoaded(n int) {
	if m == nil {
		return
	}
	m.loadedRecords.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
