// Package event normalizes heterogeneous function-invocation payloads into
// canonical invocations. An ordered set of shape detectors classifies each
// payload (API-gateway request, message batch, notification, direct
// descriptor, or fallback) and the resulting invocation runs through the
// dispatcher, whose envelope is returned verbatim as the function result.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/dispatch"
	"github.com/vietddude/relay/internal/metrics"
)

const (
	defaultMaxEventBytes = 256 * 1024

	defaultQueueAction    = "sample.processQueueMessage"
	defaultNotifyAction   = "sample.processNotification"
	defaultFallbackAction = "sample.processNotification"
)

// Config holds the event adapter settings.
type Config struct {
	// MaxEventBytes rejects larger payloads before classification.
	MaxEventBytes int `yaml:"max_event_bytes"`
	// QueueAction receives batch-shaped events.
	QueueAction string `yaml:"queue_action"`
	// NotifyAction receives notification-shaped events.
	NotifyAction string `yaml:"notify_action"`
	// DefaultAction receives events no detector recognizes.
	DefaultAction string `yaml:"default_action"`
}

// Adapter classifies raw event payloads and dispatches them.
type Adapter struct {
	cfg       Config
	router    *dispatch.Router
	detectors []detector
	log       *slog.Logger

	queueAction   domain.ActionKey
	notifyAction  domain.ActionKey
	defaultAction domain.ActionKey
}

// NewAdapter builds the adapter. Malformed action keys in the config abort
// startup.
func NewAdapter(cfg Config, router *dispatch.Router) (*Adapter, error) {
	if cfg.MaxEventBytes <= 0 {
		cfg.MaxEventBytes = defaultMaxEventBytes
	}
	if cfg.QueueAction == "" {
		cfg.QueueAction = defaultQueueAction
	}
	if cfg.NotifyAction == "" {
		cfg.NotifyAction = defaultNotifyAction
	}
	if cfg.DefaultAction == "" {
		cfg.DefaultAction = defaultFallbackAction
	}

	a := &Adapter{
		cfg:    cfg,
		router: router,
		log:    slog.Default().With("component", "event"),
	}

	var err error
	if a.queueAction, err = domain.ParseActionKey(cfg.QueueAction); err != nil {
		return nil, fmt.Errorf("invalid queue_action: %w", err)
	}
	if a.notifyAction, err = domain.ParseActionKey(cfg.NotifyAction); err != nil {
		return nil, fmt.Errorf("invalid notify_action: %w", err)
	}
	if a.defaultAction, err = domain.ParseActionKey(cfg.DefaultAction); err != nil {
		return nil, fmt.Errorf("invalid default_action: %w", err)
	}

	a.detectors = a.buildDetectors()
	return a, nil
}

// HandleEvent classifies one raw payload and dispatches it. Oversized
// payloads are rejected before classification and never reach a handler.
func (a *Adapter) HandleEvent(ctx context.Context, raw []byte) domain.Envelope {
	if len(raw) > a.cfg.MaxEventBytes {
		metrics.EventsClassified.WithLabelValues("oversize").Inc()
		a.log.Warn("Event rejected, payload too large", "size", len(raw), "limit", a.cfg.MaxEventBytes)
		return domain.Fail(domain.PayloadTooLargef("event of %d bytes exceeds limit of %d", len(raw), a.cfg.MaxEventBytes))
	}

	inv, shape, err := a.classify(raw)
	if err != nil {
		metrics.EventsClassified.WithLabelValues("invalid").Inc()
		return domain.Fail(err)
	}
	metrics.EventsClassified.WithLabelValues(shape).Inc()
	a.log.Debug("Event classified", "shape", shape, "action", inv.Key.String(), "request_id", inv.RequestID)

	return a.router.Invoke(ctx, inv)
}

func (a *Adapter) classify(raw []byte) (domain.Invocation, string, error) {
	var event map[string]any
	if err := json.Unmarshal(raw, &event); err != nil {
		// Not an object. Arrays and scalars still route through the
		// fallback; anything unparseable is a caller error.
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return domain.Invocation{}, "", domain.Validationf("event payload is not valid JSON")
		}
		inv := domain.NewInvocation(a.defaultAction, map[string]any{"body": v}, map[string]any{
			domain.MetaTransport: "event",
			"shape":              "fallback",
		})
		return inv, "fallback", nil
	}

	for _, d := range a.detectors {
		if !d.match(event) {
			continue
		}
		inv, err := d.parse(event)
		if err != nil {
			return domain.Invocation{}, d.shape, err
		}
		return inv, d.shape, nil
	}

	// Unreachable, the fallback detector matches everything.
	return domain.Invocation{}, "", domain.Validationf("unclassifiable event payload")
}
