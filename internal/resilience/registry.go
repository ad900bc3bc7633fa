package resilience

import (
	"sync"
	"time"
)

// Config bundles the defaults applied to every action key.
type Config struct {
	Breaker  BreakerConfig
	Bulkhead BulkheadConfig
}

// DefaultConfig is used for any field left zero in the configured policy.
var DefaultConfig = Config{
	Breaker: BreakerConfig{
		Window:           60 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      5,
		HalfOpenAfter:    30 * time.Second,
	},
	Bulkhead: BulkheadConfig{
		MaxConcurrent: 10,
		MaxQueue:      10,
	},
}

type entry struct {
	breaker  *Breaker
	bulkhead *Bulkhead
}

// Registry owns the breaker/bulkhead pair for each action key. Pairs are
// created lazily on first reference and shared by reference across all
// concurrent invocations of that key, never copied.
type Registry struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: normalize(cfg), entries: make(map[string]*entry)}
}

func normalize(cfg Config) Config {
	def := DefaultConfig
	if cfg.Breaker.Window <= 0 {
		cfg.Breaker.Window = def.Breaker.Window
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker.FailureThreshold = def.Breaker.FailureThreshold
	}
	if cfg.Breaker.MinRequests <= 0 {
		cfg.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if cfg.Breaker.HalfOpenAfter <= 0 {
		cfg.Breaker.HalfOpenAfter = def.Breaker.HalfOpenAfter
	}
	if cfg.Bulkhead.MaxConcurrent <= 0 {
		cfg.Bulkhead.MaxConcurrent = def.Bulkhead.MaxConcurrent
	}
	if cfg.Bulkhead.MaxQueue <= 0 {
		cfg.Bulkhead.MaxQueue = def.Bulkhead.MaxQueue
	}
	return cfg
}

// For returns the shared pair for key, creating it on first use.
func (r *Registry) For(key string) (*Breaker, *Bulkhead) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = &entry{
			breaker:  NewBreaker(r.cfg.Breaker),
			bulkhead: NewBulkhead(r.cfg.Bulkhead),
		}
		r.entries[key] = e
	}
	return e.breaker, e.bulkhead
}

// Snapshot is the per-key state pair exposed on the status endpoint.
type Snapshot struct {
	Breaker  BreakerSnapshot  `json:"breaker"`
	Bulkhead BulkheadSnapshot `json:"bulkhead"`
}

// SnapshotAll captures every known action key.
func (r *Registry) SnapshotAll() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Snapshot, len(r.entries))
	for key, e := range r.entries {
		out[key] = Snapshot{Breaker: e.breaker.Snapshot(), Bulkhead: e.bulkhead.Snapshot()}
	}
	return out
}
