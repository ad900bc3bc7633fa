// Package resilience owns the per-action fault-tolerance state: a three-state
// circuit breaker over a sliding outcome window and a bulkhead capping
// concurrent executions. One breaker/bulkhead pair exists per action key,
// created lazily and shared by reference for the process lifetime.
package resilience

import (
	"sync"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// BreakerState is the admission state of a circuit breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig tunes one breaker.
type BreakerConfig struct {
	Window           time.Duration // width of the sliding outcome window
	FailureThreshold float64       // failure ratio that trips the breaker
	MinRequests      int           // outcomes required before the ratio counts
	HalfOpenAfter    time.Duration // cooldown before a probe is admitted
}

type outcome struct {
	at time.Time
	ok bool
}

// Breaker is a circuit breaker for one action key. All methods are safe for
// concurrent use.
//
// CLOSED admits everything. When the failure ratio over the trailing window
// reaches FailureThreshold with at least MinRequests outcomes, the breaker
// opens. OPEN rejects until HalfOpenAfter has elapsed, then admits exactly
// one probe (HALF_OPEN); concurrent calls during the probe are still
// rejected. The probe outcome closes or re-opens the breaker.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    BreakerState
	window   []outcome
	openedAt time.Time
	probing  bool
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow decides admission for one invocation. probe is true when the call is
// admitted as the half-open probe. The caller reports the outcome via
// OnSuccess or OnFailure whenever err is nil.
func (b *Breaker) Allow() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.HalfOpenAfter {
			return false, domain.CircuitOpenf("circuit breaker is open")
		}
		b.state = StateHalfOpen
		b.probing = true
		return true, nil
	case StateHalfOpen:
		if b.probing {
			return false, domain.CircuitOpenf("circuit breaker is open")
		}
		b.probing = true
		return true, nil
	default:
		return false, nil
	}
}

// OnSuccess records a successful call. A successful probe closes the breaker
// and clears the window so pre-open failures stop counting.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.probing = false
		b.window = b.window[:0]
		return
	}

	now := time.Now()
	b.window = append(b.window, outcome{at: now, ok: true})
	b.prune(now)
}

// OnFailure records a failed call. A failed probe re-opens immediately; in
// CLOSED the window ratio decides.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = now
		b.probing = false
		return
	}

	b.window = append(b.window, outcome{at: now, ok: false})
	b.prune(now)

	if b.state != StateClosed {
		return
	}
	total := len(b.window)
	if total < b.cfg.MinRequests {
		return
	}
	failures := 0
	for _, o := range b.window {
		if !o.ok {
			failures++
		}
	}
	if float64(failures)/float64(total) >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = now
	}
}

// prune drops outcomes older than the window. Caller holds the lock.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.window) && b.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.window = b.window[i:]
	}
}

// BreakerSnapshot is a point-in-time view for status and metrics.
type BreakerSnapshot struct {
	State    BreakerState `json:"state"`
	Requests int          `json:"requests"`
	Failures int          `json:"failures"`
	OpenedAt time.Time    `json:"openedAt,omitempty"`
}

func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BreakerSnapshot{State: b.state, Requests: len(b.window)}
	for _, o := range b.window {
		if !o.ok {
			snap.Failures++
		}
	}
	if b.state != StateClosed {
		snap.OpenedAt = b.openedAt
	}
	return snap
}
