// Package runner wires one enrichment run end to end: lock, stores,
// credential pool, pipeline, report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/amishk599/synopsis/internal/config"
	"github.com/amishk599/synopsis/internal/enrich"
	"github.com/amishk599/synopsis/internal/filter"
	"github.com/amishk599/synopsis/internal/metrics"
	"github.com/amishk599/synopsis/internal/model"
	"github.com/amishk599/synopsis/internal/pipeline"
	"github.com/amishk599/synopsis/internal/ratelimit"
	"github.com/amishk599/synopsis/internal/report"
	"github.com/amishk599/synopsis/internal/retry"
	"github.com/amishk599/synopsis/internal/sink"
	"github.com/amishk599/synopsis/internal/source"
)

// ErrLocked is returned when another run already holds the sink lock.
var ErrLocked = errors.New("another synopsis run is in progress")

// Options changes how a Runner behaves between invocations of the same config.
type Options struct {
	DryRun bool          // persist nothing, log results instead
	Limit  int           // stop after this many records, 0 = no limit
	Sleep  retry.Sleeper // nil uses the real clock
}

// Runner performs complete enrichment runs for one configuration.
type Runner struct {
	cfg        *config.Config
	opts       Options
	httpClient *http.Client
	reporter   report.Reporter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Runner. metrics may be nil.
func New(cfg *config.Config, opts Options, httpClient *http.Client, reporter report.Reporter, m *metrics.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		opts:       opts,
		httpClient: httpClient,
		reporter:   reporter,
		metrics:    m,
		logger:     logger,
	}
}

// RunOnce executes a single run and reports it. Failures to take the lock or
// open either store abort before any worker starts and are returned as errors.
func (r *Runner) RunOnce(ctx context.Context) (report.RunSummary, error) {
	sum := report.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Workers:   len(r.cfg.Credentials),
	}
	logger := r.logger.With("run_id", sum.RunID)

	err := r.run(ctx, &sum, logger)
	sum.Duration = time.Since(sum.StartedAt)
	sum.Status = report.StatusCompleted
	if err != nil {
		sum.Status = report.StatusFailed
		sum.Err = err.Error()
	}
	r.metrics.RecordRun(sum.Status)

	if rerr := r.reporter.Report(context.WithoutCancel(ctx), sum); rerr != nil {
		logger.Error("reporting run failed", "error", rerr)
	}
	return sum, err
}

func (r *Runner) run(ctx context.Context, sum *report.RunSummary, logger *slog.Logger) error {
	if err := r.cfg.RequireCredentials(); err != nil {
		return err
	}

	if !r.opts.DryRun {
		lock := flock.New(lockPath(r.cfg.Sink))
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return ErrLocked
		}
		defer lock.Unlock()
	}

	meta, err := source.NewSQLiteStore(r.cfg.Source.DBPath)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer meta.Close()

	var (
		results model.ResultStore
		seen    source.Seen
	)
	if r.opts.DryRun {
		results = sink.NewNopStore(logger)
	} else {
		store, err := sink.Open(r.cfg.Sink, sum.RunID, logger)
		if err != nil {
			return fmt.Errorf("open sink store: %w", err)
		}
		defer store.Close()
		results, seen = store, store
	}

	src, err := source.NewMetadataSource(ctx, meta, source.Options{
		Filter:   filter.NewRecordFilter(r.cfg.Source.ExcludeGenres, r.cfg.Source.TitleExcludeKeywords),
		Seen:     seen,
		YearFrom: r.cfg.Source.YearFrom,
		YearTo:   r.cfg.Source.YearTo,
		Limit:    r.opts.Limit,
	}, logger)
	if err != nil {
		return err
	}

	p, err := pipeline.New(BuildEnrichers(r.cfg, r.httpClient, r.opts.Sleep, logger), results, pipeline.Options{
		OutboundCapacity: r.cfg.Pipeline.OutboundCapacity,
		BatchSize:        r.cfg.Sink.BatchSize,
		FlushInterval:    r.cfg.Sink.FlushInterval,
	}, r.metrics, logger)
	if err != nil {
		return err
	}

	counts, err := p.Run(ctx, src)
	sum.Dispatched = counts.Dispatched
	sum.Enriched = counts.Enriched
	sum.Abandoned = counts.Abandoned
	sum.Dropped = counts.Dropped
	sum.Persisted = counts.Persisted
	sum.PersistFailures = counts.PersistFailures
	return err
}

// BuildEnrichers returns one decorated Enricher per credential, in order:
// retry state machine around optional client-side spacing around the HTTP client.
func BuildEnrichers(cfg *config.Config, httpClient *http.Client, sleep retry.Sleeper, logger *slog.Logger) []model.Enricher {
	limiter := ratelimit.NewKeyedLimiter(cfg.RateLimit.MinDelay)
	policy := retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		FailureDelay:   cfg.Retry.FailureDelay,
		RateLimitDelay: cfg.Retry.RateLimitDelay,
	}
	var retryOpts []retry.Option
	if sleep != nil {
		retryOpts = append(retryOpts, retry.WithSleeper(sleep))
	}

	opts := enrich.Options{
		BaseURL:     cfg.Enrichment.BaseURL,
		Model:       cfg.Enrichment.Model,
		MaxTokens:   cfg.Enrichment.MaxTokens,
		Temperature: cfg.Enrichment.Temperature,
	}

	enrichers := make([]model.Enricher, len(cfg.Credentials))
	for i, cred := range cfg.Credentials {
		var e model.Enricher = enrich.NewClient(opts, cred, httpClient)
		e = ratelimit.NewRateLimitedEnricher(e, limiter, "credential-"+strconv.Itoa(i))
		enrichers[i] = retry.NewRetryEnricher(e,
			retry.New(policy, logger.With("component", "retry", "worker", i), retryOpts...))
	}
	return enrichers
}

func lockPath(cfg config.SinkConfig) string {
	if cfg.Backend == "badger" {
		return cfg.BadgerDir + ".lock"
	}
	return cfg.DBPath + ".lock"
}
