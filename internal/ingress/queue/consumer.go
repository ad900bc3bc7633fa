// Package queue drains named relay queues into the dispatcher. Each queue
// gets one consumer loop that pops messages in arrival order, invokes the
// queue's configured action, and acknowledges, drops, or requeues per the
// queue's failure policy.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/metrics"
)

// FailurePolicy selects what happens to a message whose invocation failed.
type FailurePolicy string

const (
	// Drop acknowledges the failed message and logs it.
	Drop FailurePolicy = "drop"
	// Requeue pushes the failed message back with an incremented attempt
	// count, up to MaxAttempts deliveries, then drops it.
	Requeue FailurePolicy = "requeue"
)

const (
	defaultWait         = 5 * time.Second
	defaultErrorBackoff = 2 * time.Second
	defaultRequeueDelay = 500 * time.Millisecond
	defaultMaxAttempts  = 3
	defaultDrainTimeout = 30 * time.Second

	maxRequeueDelay = 30 * time.Second
)

// Config describes one consumed queue.
type Config struct {
	// Queue is the queue name on the transport.
	Queue string `yaml:"name"`
	// Action is the fixed target action for every message on this queue.
	Action string `yaml:"action"`
	// OnFailure picks the failure policy for this queue. Empty defaults
	// to drop.
	OnFailure FailurePolicy `yaml:"on_failure"`
	// MaxAttempts bounds total deliveries under the requeue policy.
	MaxAttempts int `yaml:"max_attempts"`
	// Wait bounds each blocking pop.
	Wait time.Duration `yaml:"wait"`
	// ErrorBackoff is the pause after a transport read error. Empty polls
	// never back off.
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	// RequeueDelay is the base delay before a requeued message is pushed
	// back; it doubles per delivery attempt.
	RequeueDelay time.Duration `yaml:"requeue_delay"`
	// DrainTimeout bounds how long an in-flight message may keep running
	// after shutdown begins.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// Invoker is the dispatch surface the consumer needs.
type Invoker interface {
	Invoke(ctx context.Context, inv domain.Invocation) domain.Envelope
}

// Consumer drains one queue sequentially.
type Consumer struct {
	cfg       Config
	action    domain.ActionKey
	transport Transport
	invoker   Invoker
	log       *slog.Logger
}

// NewConsumer validates the queue configuration and builds its consumer.
func NewConsumer(cfg Config, transport Transport, invoker Invoker) (*Consumer, error) {
	if cfg.Queue == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	action, err := domain.ParseActionKey(cfg.Action)
	if err != nil {
		return nil, fmt.Errorf("queue %s: %w", cfg.Queue, err)
	}
	switch cfg.OnFailure {
	case "":
		cfg.OnFailure = Drop
	case Drop, Requeue:
	default:
		return nil, fmt.Errorf("queue %s: unknown failure policy %q", cfg.Queue, cfg.OnFailure)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Wait <= 0 {
		cfg.Wait = defaultWait
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	if cfg.RequeueDelay <= 0 {
		cfg.RequeueDelay = defaultRequeueDelay
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}

	return &Consumer{
		cfg:       cfg,
		action:    action,
		transport: transport,
		invoker:   invoker,
		log:       slog.Default().With("component", "queue", "queue", cfg.Queue),
	}, nil
}

// Run drains the queue until ctx is cancelled. Messages are handled strictly
// in arrival order with no overlap; an in-flight message finishes before the
// loop exits.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info("Queue consumer started", "action", c.action.String(), "on_failure", string(c.cfg.OnFailure))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Queue consumer stopped")
			return
		default:
		}

		delivery, err := c.transport.Pop(ctx, c.cfg.Wait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.log.Error("Failed to read from queue", "error", err)
			c.sleep(ctx, c.cfg.ErrorBackoff)
			continue
		}
		if delivery == nil {
			// Empty wait, poll again without backoff.
			continue
		}

		c.process(ctx, delivery)
	}
}

// process handles one delivery start to finish. Shutdown during processing
// does not abandon the message; the work completes under a drain context.
func (c *Consumer) process(parent context.Context, d Delivery) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.DrainTimeout)
	defer cancel()

	msg, err := domain.DecodeQueueMessage(d.Raw())
	if err != nil {
		// An undecodable payload can never succeed; requeueing would loop
		// forever.
		c.log.Error("Dropping undecodable message", "error", err)
		c.finish(ctx, d, "dropped")
		return
	}

	meta := map[string]any{
		domain.MetaTransport: "queue",
		"queue":              c.cfg.Queue,
		"attempts":           msg.Meta.Attempts,
		"enqueued_at":        msg.Meta.Timestamp,
	}
	if cid, ok := msg.Meta.Options[domain.MetaCorrelationID]; ok {
		meta[domain.MetaCorrelationID] = cid
	}
	inv := domain.NewInvocation(c.action, msg.DataMap(), meta)

	env := c.invoker.Invoke(ctx, inv)
	if env.Success {
		c.log.Debug("Message processed", "request_id", inv.RequestID)
		c.finish(ctx, d, "processed")
		return
	}

	c.log.Warn("Message invocation failed", "request_id", inv.RequestID, "code", env.Error.Code)

	if c.cfg.OnFailure == Requeue && msg.Meta.Attempts+1 < c.cfg.MaxAttempts {
		msg.Meta.Attempts++
		c.sleep(ctx, c.requeueDelay(msg.Meta.Attempts))
		if err := d.Requeue(ctx, msg); err != nil {
			// The message stays on the processing list; delivery is
			// at-least-once either way.
			c.log.Error("Failed to requeue message", "error", err)
			return
		}
		metrics.QueueMessagesTotal.WithLabelValues(c.cfg.Queue, "requeued").Inc()
		return
	}

	c.log.Warn("Dropping failed message", "request_id", inv.RequestID, "deliveries", msg.Meta.Attempts+1)
	c.finish(ctx, d, "dropped")
}

func (c *Consumer) finish(ctx context.Context, d Delivery, outcome string) {
	metrics.QueueMessagesTotal.WithLabelValues(c.cfg.Queue, outcome).Inc()
	if err := d.Ack(ctx); err != nil {
		c.log.Error("Failed to ack message", "error", err)
	}
}

// requeueDelay doubles the base delay per delivery, capped.
func (c *Consumer) requeueDelay(attempts int) time.Duration {
	delay := c.cfg.RequeueDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRequeueDelay {
			return maxRequeueDelay
		}
	}
	return delay
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
