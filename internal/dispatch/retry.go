package dispatch

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// RetryPolicy controls how failed handler calls are retried. Immutable after
// construction.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        time.Duration
	Retryable     func(error) bool
}

// DefaultRetryPolicy is applied where configuration leaves fields zero.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     100 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        50 * time.Millisecond,
	Retryable:     domain.Retryable,
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = def.BackoffFactor
	}
	if p.Retryable == nil {
		p.Retryable = domain.Retryable
	}
	return p
}

// Backoff computes the delay before re-running after the given zero-based
// failed attempt: min(BaseDelay * BackoffFactor^attempt, MaxDelay) plus
// random jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	d := time.Duration(delay)
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}

// sleepCtx waits for d unless ctx finishes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
