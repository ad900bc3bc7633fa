package queue

import (
	"context"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/redisq"
)

// Delivery is one in-flight message taken from a queue.
type Delivery interface {
	// Raw returns the message bytes as stored.
	Raw() []byte
	// Ack removes the message permanently.
	Ack(ctx context.Context) error
	// Requeue replaces the message with an updated copy at the back of the
	// queue.
	Requeue(ctx context.Context, msg *domain.QueueMessage) error
}

// Transport is the queue backend a consumer drains. Pop blocks up to wait
// and returns a nil delivery when the queue stayed empty.
type Transport interface {
	Name() string
	Pop(ctx context.Context, wait time.Duration) (Delivery, error)
}

// RedisTransport adapts a redisq queue to the Transport interface.
type RedisTransport struct {
	Queue *redisq.Queue
}

func (t RedisTransport) Name() string {
	return t.Queue.Name()
}

func (t RedisTransport) Pop(ctx context.Context, wait time.Duration) (Delivery, error) {
	d, err := t.Queue.Pop(ctx, wait)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	return d, nil
}
