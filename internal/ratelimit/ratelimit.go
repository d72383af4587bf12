package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amishk599/synopsis/internal/model"
)

// KeyedLimiter enforces a minimum delay between consecutive requests sharing a key.
// Concurrent callers on the same key are spaced out rather than released together.
type KeyedLimiter struct {
	mu       sync.Mutex
	nextSlot map[string]time.Time // key: credential label or upstream host
	minDelay time.Duration
}

// NewKeyedLimiter creates a limiter that enforces minDelay between requests on the same key.
// A zero minDelay never blocks.
func NewKeyedLimiter(minDelay time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		nextSlot: make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until the caller's reserved slot for key arrives.
// Returns an error if the context is cancelled while waiting.
func (r *KeyedLimiter) Wait(ctx context.Context, key string) error {
	if r.minDelay <= 0 {
		return nil
	}

	r.mu.Lock()
	now := time.Now()
	slot, ok := r.nextSlot[key]
	if !ok || slot.Before(now) {
		slot = now
	}
	r.nextSlot[key] = slot.Add(r.minDelay)
	r.mu.Unlock()

	remaining := slot.Sub(now)
	if remaining <= 0 {
		return nil
	}

	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", key, ctx.Err())
	case <-t.C:
	}
	return nil
}

// RateLimitedEnricher is a decorator that spaces out requests made with one
// credential before delegating to the wrapped Enricher.
type RateLimitedEnricher struct {
	inner   model.Enricher
	limiter *KeyedLimiter
	key     string
}

// NewRateLimitedEnricher wraps an Enricher with per-key spacing.
func NewRateLimitedEnricher(inner model.Enricher, limiter *KeyedLimiter, key string) *RateLimitedEnricher {
	return &RateLimitedEnricher{
		inner:   inner,
		limiter: limiter,
		key:     key,
	}
}

// Enrich waits for the limiter, then delegates to the wrapped enricher.
func (e *RateLimitedEnricher) Enrich(ctx context.Context, rec model.Record) (model.EnrichedResult, error) {
	if err := e.limiter.Wait(ctx, e.key); err != nil {
		return model.EnrichedResult{}, err
	}
	return e.inner.Enrich(ctx, rec)
}
