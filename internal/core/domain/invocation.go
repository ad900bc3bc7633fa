package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActionKey identifies one business action independent of the transport that
// invoked it.
type ActionKey struct {
	Service string
	Action  string
}

func NewActionKey(service, action string) ActionKey {
	return ActionKey{Service: service, Action: action}
}

// ParseActionKey parses "service.action".
func ParseActionKey(s string) (ActionKey, error) {
	service, action, ok := strings.Cut(s, ".")
	if !ok || service == "" || action == "" {
		return ActionKey{}, fmt.Errorf("invalid action key %q, want service.action", s)
	}
	return ActionKey{Service: service, Action: action}, nil
}

func (k ActionKey) String() string {
	return k.Service + "." + k.Action
}

// Metadata keys ingress adapters set on invocations.
const (
	MetaTransport     = "transport"
	MetaCorrelationID = "correlation_id"
	MetaTimeoutMS     = "timeout_ms"
)

// Invocation is the canonical, transport-independent description of one
// action call. An ingress adapter builds it once per inbound event; the
// dispatcher consumes it once. Treated as immutable after construction.
type Invocation struct {
	Key       ActionKey
	Params    map[string]any
	Meta      map[string]any
	RequestID string
}

// NewInvocation builds an invocation with a fresh request id.
func NewInvocation(key ActionKey, params, meta map[string]any) Invocation {
	if params == nil {
		params = map[string]any{}
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return Invocation{Key: key, Params: params, Meta: meta, RequestID: uuid.NewString()}
}

// Transport returns the originating transport, or "" when unset.
func (inv Invocation) Transport() string {
	s, _ := inv.Meta[MetaTransport].(string)
	return s
}

// TimeoutOverride returns the per-invocation timeout carried in metadata.
// Accepts integer or float millisecond values, which is what JSON decoding
// produces.
func (inv Invocation) TimeoutOverride() (time.Duration, bool) {
	v, ok := inv.Meta[MetaTimeoutMS]
	if !ok {
		return 0, false
	}
	switch ms := v.(type) {
	case int:
		return time.Duration(ms) * time.Millisecond, ms > 0
	case int64:
		return time.Duration(ms) * time.Millisecond, ms > 0
	case float64:
		return time.Duration(ms * float64(time.Millisecond)), ms > 0
	default:
		return 0, false
	}
}
