package redisq

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/relay/internal/core/domain"
)

// Queue is one named relay queue backed by a pair of Redis lists. Producers
// push to the pending list; consumers move each message to a per-queue
// processing list so a crash between pop and ack cannot lose it, then remove
// it on ack. Delivery is at-least-once.
type Queue struct {
	client *Client
	name   string
}

// NewQueue returns a handle on the named queue.
func NewQueue(client *Client, name string) *Queue {
	return &Queue{client: client, name: name}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) pendingKey() string {
	return fmt.Sprintf("relay:queue:%s", q.name)
}

func (q *Queue) processingKey() string {
	return fmt.Sprintf("relay:queue:%s:processing", q.name)
}

// Push enqueues a message.
func (q *Queue) Push(ctx context.Context, msg *domain.QueueMessage) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := q.client.rdb.LPush(ctx, q.pendingKey(), raw).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.name, err)
	}
	return nil
}

// Pop blocks up to wait for the next message, moving it to the processing
// list until acknowledged. Messages come back in arrival order. A nil
// delivery with nil error means the wait expired with the queue empty.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (*Delivery, error) {
	raw, err := q.client.rdb.BLMove(ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", wait).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from %s: %w", q.name, err)
	}
	return &Delivery{queue: q, raw: raw}, nil
}

// Len returns the number of pending messages.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.rdb.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", q.name, err)
	}
	return n, nil
}

// Purge drops all pending and in-flight messages.
func (q *Queue) Purge(ctx context.Context) error {
	if err := q.client.rdb.Del(ctx, q.pendingKey(), q.processingKey()).Err(); err != nil {
		return fmt.Errorf("failed to purge %s: %w", q.name, err)
	}
	return nil
}

// Delivery is one in-flight message. The raw payload is retained verbatim so
// the exact list element can be removed on ack.
type Delivery struct {
	queue *Queue
	raw   string
}

// Raw returns the message bytes as stored.
func (d *Delivery) Raw() []byte {
	return []byte(d.raw)
}

// Ack removes the message from the processing list.
func (d *Delivery) Ack(ctx context.Context) error {
	if err := d.queue.client.rdb.LRem(ctx, d.queue.processingKey(), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack on %s: %w", d.queue.name, err)
	}
	return nil
}

// Requeue atomically removes the delivery from the processing list and pushes
// the updated message back to the pending list, so it lands behind messages
// that arrived in the meantime.
func (d *Delivery) Requeue(ctx context.Context, msg *domain.QueueMessage) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	pipe := d.queue.client.rdb.TxPipeline()
	pipe.LRem(ctx, d.queue.processingKey(), 1, d.raw)
	pipe.LPush(ctx, d.queue.pendingKey(), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue on %s: %w", d.queue.name, err)
	}
	return nil
}
