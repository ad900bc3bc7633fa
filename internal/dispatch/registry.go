package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vietddude/relay/internal/core/domain"
)

// Handler executes one business action. It returns the action result or an
// error from the domain taxonomy; anything else is treated as internal.
type Handler func(ctx context.Context, params map[string]any, meta map[string]any) (any, error)

// Registry is the startup-time table of actions. Every action is registered
// explicitly during wiring; there is no runtime discovery.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds key to handler. Duplicate and nil registrations are wiring
// bugs and abort startup.
func (r *Registry) Register(key domain.ActionKey, h Handler) error {
	if h == nil {
		return fmt.Errorf("register %s: nil handler", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key.String()]; exists {
		return fmt.Errorf("register %s: already registered", key)
	}
	r.handlers[key.String()] = h
	return nil
}

// Lookup returns the handler for key.
func (r *Registry) Lookup(key domain.ActionKey) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key.String()]
	return h, ok
}

// Keys lists registered action keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
