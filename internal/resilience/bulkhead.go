package resilience

import (
	"context"
	"sync"

	"github.com/vietddude/relay/internal/core/domain"
)

// BulkheadConfig caps concurrent executions and the waiting queue for one
// action key.
type BulkheadConfig struct {
	MaxConcurrent int
	MaxQueue      int
}

// Bulkhead admits up to MaxConcurrent simultaneous executions; the next
// MaxQueue callers wait for a slot, and everyone beyond that is rejected
// immediately. Safe for concurrent use.
type Bulkhead struct {
	mu      sync.Mutex
	cfg     BulkheadConfig
	slots   chan struct{}
	active  int
	waiting int
}

func NewBulkhead(cfg BulkheadConfig) *Bulkhead {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Bulkhead{cfg: cfg, slots: make(chan struct{}, cfg.MaxConcurrent)}
}

// Acquire takes an execution slot, queueing within the bounded wait queue
// when all slots are busy. Returns a BULKHEAD_FULL error when the queue is
// also at capacity, or a TIMEOUT error when ctx expires while queued. Every
// nil return must be paired with Release.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		b.mu.Lock()
		b.active++
		b.mu.Unlock()
		return nil
	default:
	}

	b.mu.Lock()
	if b.waiting >= b.cfg.MaxQueue {
		b.mu.Unlock()
		return domain.BulkheadFullf("concurrency limit and wait queue exhausted")
	}
	b.waiting++
	b.mu.Unlock()

	select {
	case b.slots <- struct{}{}:
		b.mu.Lock()
		b.waiting--
		b.active++
		b.mu.Unlock()
		return nil
	case <-ctx.Done():
		b.mu.Lock()
		b.waiting--
		b.mu.Unlock()
		return domain.Timeoutf("gave up waiting for an execution slot")
	}
}

// Release frees the slot taken by a successful Acquire.
func (b *Bulkhead) Release() {
	<-b.slots
	b.mu.Lock()
	b.active--
	b.mu.Unlock()
}

// BulkheadSnapshot is a point-in-time view for status and metrics.
type BulkheadSnapshot struct {
	Active        int `json:"active"`
	Waiting       int `json:"waiting"`
	MaxConcurrent int `json:"maxConcurrent"`
	MaxQueue      int `json:"maxQueue"`
}

func (b *Bulkhead) Snapshot() BulkheadSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BulkheadSnapshot{
		Active:        b.active,
		Waiting:       b.waiting,
		MaxConcurrent: b.cfg.MaxConcurrent,
		MaxQueue:      b.cfg.MaxQueue,
	}
}
