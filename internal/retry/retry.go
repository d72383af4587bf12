package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/synopsis/internal/httputil"
	"github.com/amishk599/synopsis/internal/model"
)

// Sleeper blocks for d or until ctx is done. Tests substitute a fake.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy is the failure budget applied to one unit of work.
type Policy struct {
	MaxAttempts    int           // non-rate-limit failures allowed before giving up
	FailureDelay   time.Duration // sleep after each non-rate-limit failure
	RateLimitDelay time.Duration // sleep after a 429 that carries no usable Retry-After
}

// Retrier runs a call under a Policy:
//
//   - HTTP 429 sleeps Retry-After (or RateLimitDelay) and calls again without
//     spending the budget. Rate-limit retries are unbounded.
//   - model.ErrUnparseable is returned immediately.
//   - once ctx is done its error is returned immediately.
//   - anything else sleeps FailureDelay and spends one attempt; once
//     MaxAttempts are spent the result wraps model.ErrRetriesExhausted.
type Retrier struct {
	policy Policy
	sleep  Sleeper
	logger *slog.Logger
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the real clock, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

// New returns a Retrier for policy.
func New(policy Policy, logger *slog.Logger, opts ...Option) *Retrier {
	r := &Retrier{policy: policy, sleep: SleepContext, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Do calls fn until it succeeds or the policy gives up.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		// Only the caller's context ends the loop. A client timeout also
		// matches context.DeadlineExceeded but is an ordinary failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if errors.Is(err, model.ErrUnparseable) {
			return err
		}

		if model.IsRateLimited(err) {
			delay := httputil.RetryAfterOr(err, r.policy.RateLimitDelay)
			r.logger.Warn("rate limited, waiting", "retry_after", delay, "attempt", attempt)
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		r.logger.Warn("call failed, backing off",
			"attempt", attempt+1,
			"max_attempts", r.policy.MaxAttempts,
			"delay", r.policy.FailureDelay,
			"error", err,
		)
		if err := r.sleep(ctx, r.policy.FailureDelay); err != nil {
			return err
		}
		attempt++
		if attempt >= r.policy.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", model.ErrRetriesExhausted, attempt, err)
		}
	}
}

// RetryEnricher is a decorator that runs every Enrich call of the wrapped
// Enricher under a Retrier. It keeps no state between records.
type RetryEnricher struct {
	inner   model.Enricher
	retrier *Retrier
}

// NewRetryEnricher wraps inner with retrier.
func NewRetryEnricher(inner model.Enricher, retrier *Retrier) *RetryEnricher {
	return &RetryEnricher{inner: inner, retrier: retrier}
}

// Enrich returns the first successful result, or the error that ended the
// state machine for rec.
func (e *RetryEnricher) Enrich(ctx context.Context, rec model.Record) (model.EnrichedResult, error) {
	var result model.EnrichedResult
	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = e.inner.Enrich(ctx, rec)
		return err
	})
	if err != nil {
		return model.EnrichedResult{}, err
	}
	return result, nil
}
