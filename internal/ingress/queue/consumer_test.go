package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// fakeTransport is an in-memory queue with the same pop semantics as the
// Redis transport: bounded blocking wait, nil delivery on empty.
type fakeTransport struct {
	mu       sync.Mutex
	pending  [][]byte
	popErr   error
	acks     int
	requeues int
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) push(raw []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, raw)
}

func (t *fakeTransport) failNextPop(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.popErr = err
}

func (t *fakeTransport) counts() (acks, requeues int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acks, t.requeues
}

func (t *fakeTransport) Pop(ctx context.Context, wait time.Duration) (Delivery, error) {
	t.mu.Lock()
	if t.popErr != nil {
		err := t.popErr
		t.popErr = nil
		t.mu.Unlock()
		return nil, err
	}
	if len(t.pending) == 0 {
		t.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
			return nil, nil
		}
	}
	raw := t.pending[0]
	t.pending = t.pending[1:]
	t.mu.Unlock()
	return &fakeDelivery{t: t, raw: raw}, nil
}

type fakeDelivery struct {
	t   *fakeTransport
	raw []byte
}

func (d *fakeDelivery) Raw() []byte { return d.raw }

func (d *fakeDelivery) Ack(context.Context) error {
	d.t.mu.Lock()
	defer d.t.mu.Unlock()
	d.t.acks++
	return nil
}

func (d *fakeDelivery) Requeue(_ context.Context, msg *domain.QueueMessage) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}
	d.t.mu.Lock()
	defer d.t.mu.Unlock()
	d.t.pending = append(d.t.pending, raw)
	d.t.requeues++
	return nil
}

type fakeInvoker struct {
	mu   sync.Mutex
	fn   func(inv domain.Invocation) domain.Envelope
	invs []domain.Invocation
}

func (i *fakeInvoker) Invoke(_ context.Context, inv domain.Invocation) domain.Envelope {
	i.mu.Lock()
	i.invs = append(i.invs, inv)
	fn := i.fn
	i.mu.Unlock()
	if fn == nil {
		return domain.OK("done")
	}
	return fn(inv)
}

func (i *fakeInvoker) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.invs)
}

func (i *fakeInvoker) invocation(n int) domain.Invocation {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.invs[n]
}

func encodeMsg(t *testing.T, data map[string]any) []byte {
	t.Helper()
	msg, err := domain.NewQueueMessage(data)
	if err != nil {
		t.Fatalf("NewQueueMessage failed: %v", err)
	}
	raw, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return raw
}

func testConfig(policy FailurePolicy) Config {
	return Config{
		Queue:        "jobs",
		Action:       "sample.processQueueMessage",
		OnFailure:    policy,
		MaxAttempts:  2,
		Wait:         10 * time.Millisecond,
		ErrorBackoff: 5 * time.Millisecond,
		RequeueDelay: time.Millisecond,
	}
}

func startConsumer(t *testing.T, cfg Config, transport Transport, invoker Invoker) (stop func()) {
	t.Helper()
	consumer, err := NewConsumer(cfg, transport, invoker)
	if err != nil {
		t.Fatalf("NewConsumer failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestMessagesProcessedInArrivalOrder(t *testing.T) {
	transport := &fakeTransport{}
	for _, n := range []string{"A", "B", "C"} {
		transport.push(encodeMsg(t, map[string]any{"n": n}))
	}

	var (
		orderMu sync.Mutex
		order   []string
		active  atomic.Int32
		overlap atomic.Bool
	)
	invoker := &fakeInvoker{fn: func(inv domain.Invocation) domain.Envelope {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		defer active.Add(-1)
		time.Sleep(5 * time.Millisecond)
		orderMu.Lock()
		order = append(order, inv.Params["n"].(string))
		orderMu.Unlock()
		return domain.OK("done")
	}}

	stop := startConsumer(t, testConfig(Drop), transport, invoker)
	defer stop()

	waitFor(t, func() bool { return invoker.count() == 3 }, "3 messages not processed")

	orderMu.Lock()
	defer orderMu.Unlock()
	if len(order) != 3 || order[0] != "A" || order[1] != "B" || order[2] != "C" {
		t.Errorf("order = %v, want [A B C]", order)
	}
	if overlap.Load() {
		t.Error("messages of one queue overlapped")
	}
}

func TestSuccessfulMessageAcked(t *testing.T) {
	transport := &fakeTransport{}
	transport.push(encodeMsg(t, map[string]any{"n": "ok"}))
	invoker := &fakeInvoker{}

	stop := startConsumer(t, testConfig(Drop), transport, invoker)
	defer stop()

	waitFor(t, func() bool { acks, _ := transport.counts(); return acks == 1 }, "message not acked")
	if _, requeues := transport.counts(); requeues != 0 {
		t.Errorf("requeues = %d, want 0", requeues)
	}

	inv := invoker.invocation(0)
	if inv.Transport() != "queue" || inv.Meta["queue"] != "jobs" {
		t.Errorf("meta = %v, want queue transport metadata", inv.Meta)
	}
}

func TestDropPolicyAcksFailedMessage(t *testing.T) {
	transport := &fakeTransport{}
	transport.push(encodeMsg(t, map[string]any{"n": "bad"}))
	invoker := &fakeInvoker{fn: func(domain.Invocation) domain.Envelope {
		return domain.Fail(domain.Timeoutf("downstream slow"))
	}}

	stop := startConsumer(t, testConfig(Drop), transport, invoker)
	defer stop()

	waitFor(t, func() bool { acks, _ := transport.counts(); return acks == 1 }, "failed message not dropped")
	if _, requeues := transport.counts(); requeues != 0 {
		t.Errorf("requeues = %d, want 0 under drop policy", requeues)
	}
	if invoker.count() != 1 {
		t.Errorf("invocations = %d, want 1", invoker.count())
	}
}

func TestRequeuePolicyRetriesThenDrops(t *testing.T) {
	transport := &fakeTransport{}
	transport.push(encodeMsg(t, map[string]any{"n": "flaky"}))
	invoker := &fakeInvoker{fn: func(domain.Invocation) domain.Envelope {
		return domain.Fail(domain.Timeoutf("still failing"))
	}}

	stop := startConsumer(t, testConfig(Requeue), transport, invoker)
	defer stop()

	// MaxAttempts 2: first delivery requeues, second drops.
	waitFor(t, func() bool { acks, _ := transport.counts(); return acks == 1 }, "exhausted message not dropped")

	if _, requeues := transport.counts(); requeues != 1 {
		t.Errorf("requeues = %d, want 1", requeues)
	}
	if invoker.count() != 2 {
		t.Errorf("invocations = %d, want 2", invoker.count())
	}
	if got := invoker.invocation(1).Meta["attempts"]; got != 1 {
		t.Errorf("second delivery attempts = %v, want 1", got)
	}
}

func TestUndecodableMessageDroppedWithoutInvocation(t *testing.T) {
	transport := &fakeTransport{}
	transport.push([]byte("not a queue message"))
	invoker := &fakeInvoker{}

	stop := startConsumer(t, testConfig(Requeue), transport, invoker)
	defer stop()

	waitFor(t, func() bool { acks, _ := transport.counts(); return acks == 1 }, "undecodable message not dropped")
	if invoker.count() != 0 {
		t.Errorf("invocations = %d, want 0", invoker.count())
	}
	if _, requeues := transport.counts(); requeues != 0 {
		t.Errorf("requeues = %d, want 0 for undecodable message", requeues)
	}
}

func TestTransportErrorBacksOffAndRecovers(t *testing.T) {
	transport := &fakeTransport{}
	transport.failNextPop(errors.New("connection reset"))
	transport.push(encodeMsg(t, map[string]any{"n": "after-error"}))
	invoker := &fakeInvoker{}

	stop := startConsumer(t, testConfig(Drop), transport, invoker)
	defer stop()

	waitFor(t, func() bool { return invoker.count() == 1 }, "consumer did not recover from transport error")
}

func TestShutdownLetsInFlightMessageFinish(t *testing.T) {
	transport := &fakeTransport{}
	transport.push(encodeMsg(t, map[string]any{"n": "slow"}))

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	invoker := &fakeInvoker{fn: func(domain.Invocation) domain.Envelope {
		once.Do(func() { close(started) })
		<-release
		return domain.OK("done")
	}}

	consumer, err := NewConsumer(testConfig(Drop), transport, invoker)
	if err != nil {
		t.Fatalf("NewConsumer failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()

	<-started
	cancel()

	select {
	case <-done:
		t.Fatal("consumer exited while a message was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after drain")
	}

	acks, _ := transport.counts()
	if acks != 1 {
		t.Errorf("acks = %d, want in-flight message acked during drain", acks)
	}
}

func TestNewConsumerValidation(t *testing.T) {
	transport := &fakeTransport{}
	invoker := &fakeInvoker{}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing name", Config{Action: "sample.list"}},
		{"bad action", Config{Queue: "q", Action: "nodot"}},
		{"unknown policy", Config{Queue: "q", Action: "sample.list", OnFailure: "explode"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewConsumer(tt.cfg, transport, invoker); err == nil {
				t.Error("NewConsumer accepted invalid config")
			}
		})
	}
}
