package event

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/dispatch"
	"github.com/vietddude/relay/internal/resilience"
)

type call struct {
	action string
	params map[string]any
	meta   map[string]any
}

// recorder captures every dispatched call so tests can assert on the
// classified action and parameters.
type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) handler(action string) dispatch.Handler {
	return func(_ context.Context, params map[string]any, meta map[string]any) (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, call{action: action, params: params, meta: meta})
		return map[string]any{"handled": action}, nil
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last(t *testing.T) call {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		t.Fatal("no handler call recorded")
	}
	return r.calls[len(r.calls)-1]
}

func newTestAdapter(t *testing.T, cfg Config) (*Adapter, *recorder) {
	t.Helper()
	rec := &recorder{}
	reg := dispatch.NewRegistry()
	for _, action := range []string{"list", "get", "create", "update", "remove", "processQueueMessage", "processNotification"} {
		key := domain.NewActionKey("sample", action)
		if err := reg.Register(key, rec.handler(key.String())); err != nil {
			t.Fatalf("register %s: %v", key, err)
		}
	}
	router := dispatch.NewRouter(dispatch.Config{}, reg, resilience.NewRegistry(resilience.DefaultConfig))

	adapter, err := NewAdapter(cfg, router)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	return adapter, rec
}

func handle(t *testing.T, a *Adapter, payload string) domain.Envelope {
	t.Helper()
	return a.HandleEvent(context.Background(), []byte(payload))
}

func TestClassifyHTTPRoutes(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantAction string
		wantID     string
	}{
		{"get collection", `{"httpMethod":"GET","path":"/sample"}`, "sample.list", ""},
		{"get one", `{"httpMethod":"GET","path":"/sample/42"}`, "sample.get", "42"},
		{"create", `{"httpMethod":"POST","path":"/sample","body":"{\"name\":\"a\",\"email\":\"a@b.c\"}"}`, "sample.create", ""},
		{"update", `{"httpMethod":"PUT","path":"/sample/42","body":"{\"name\":\"b\"}"}`, "sample.update", "42"},
		{"remove", `{"httpMethod":"DELETE","path":"/sample/42"}`, "sample.remove", "42"},
		{"trailing slash", `{"httpMethod":"GET","path":"/sample/"}`, "sample.list", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, rec := newTestAdapter(t, Config{})
			env := handle(t, adapter, tt.payload)
			if !env.Success {
				t.Fatalf("envelope = %+v, want success", env)
			}
			got := rec.last(t)
			if got.action != tt.wantAction {
				t.Errorf("action = %q, want %q", got.action, tt.wantAction)
			}
			if tt.wantID != "" && got.params["id"] != tt.wantID {
				t.Errorf("params[id] = %v, want %q", got.params["id"], tt.wantID)
			}
			if got.meta["shape"] != "http" {
				t.Errorf("meta[shape] = %v, want http", got.meta["shape"])
			}
		})
	}
}

func TestClassifyHTTPUnroutable(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"three segments", `{"httpMethod":"GET","path":"/a/b/c"}`},
		{"patch unsupported", `{"httpMethod":"PATCH","path":"/sample/42"}`},
		{"empty path", `{"httpMethod":"GET","path":"/"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, rec := newTestAdapter(t, Config{})
			env := handle(t, adapter, tt.payload)
			if env.Success || env.Error.Code != string(domain.KindValidation) {
				t.Errorf("envelope = %+v, want VALIDATION_ERROR", env)
			}
			if rec.count() != 0 {
				t.Errorf("handler called %d times, want 0", rec.count())
			}
		})
	}
}

func TestHTTPBodyTakesPrecedenceOverMergedParams(t *testing.T) {
	adapter, rec := newTestAdapter(t, Config{})
	payload := `{
		"httpMethod": "POST",
		"path": "/sample",
		"headers": {"name": "from-header", "x-trace": "abc"},
		"queryStringParameters": {"name": "from-query", "page": "2"},
		"body": "{\"name\":\"from-body\",\"email\":\"a@b.c\"}"
	}`
	if env := handle(t, adapter, payload); !env.Success {
		t.Fatalf("envelope = %+v, want success", env)
	}

	got := rec.last(t)
	if got.params["name"] != "from-body" {
		t.Errorf("params[name] = %v, want from-body", got.params["name"])
	}
	if got.params["page"] != "2" || got.params["x-trace"] != "abc" {
		t.Errorf("merged params missing: %v", got.params)
	}
}

func TestHTTPNonJSONBodyPassesThroughRaw(t *testing.T) {
	adapter, rec := newTestAdapter(t, Config{})
	payload := `{"httpMethod":"POST","path":"/sample","body":"plain text, not json"}`
	handle(t, adapter, payload)

	got := rec.last(t)
	if got.params["body"] != "plain text, not json" {
		t.Errorf("params[body] = %v, want raw body string", got.params["body"])
	}
}

func TestClassifyBatchEvent(t *testing.T) {
	adapter, rec := newTestAdapter(t, Config{})
	payload := `{"Records":[
		{"eventSource":"aws:sqs","messageId":"m-1","body":"{\"name\":\"queued\",\"email\":\"q@x.io\"}"},
		{"eventSource":"aws:sqs","messageId":"m-2","body":"{}"}
	]}`
	if env := handle(t, adapter, payload); !env.Success {
		t.Fatalf("envelope = %+v, want success", env)
	}

	got := rec.last(t)
	if got.action != "sample.processQueueMessage" {
		t.Errorf("action = %q, want sample.processQueueMessage", got.action)
	}
	if got.params["name"] != "queued" {
		t.Errorf("params = %v, want first record body merged", got.params)
	}
	if got.meta["batch_size"] != 2 || got.meta["message_id"] != "m-1" {
		t.Errorf("meta = %v, want batch_size 2 and message_id m-1", got.meta)
	}
}

func TestClassifyNotificationEvent(t *testing.T) {
	adapter, rec := newTestAdapter(t, Config{})
	payload := `{"Records":[
		{"EventSource":"aws:sns","Sns":{"MessageId":"n-1","Subject":"greetings","Message":"{\"text\":\"hi\"}"}}
	]}`
	if env := handle(t, adapter, payload); !env.Success {
		t.Fatalf("envelope = %+v, want success", env)
	}

	got := rec.last(t)
	if got.action != "sample.processNotification" {
		t.Errorf("action = %q, want sample.processNotification", got.action)
	}
	if got.params["text"] != "hi" || got.params["Subject"] != "greetings" {
		t.Errorf("params = %v, want decoded message with subject", got.params)
	}
}

func TestClassifyExplicitDescriptor(t *testing.T) {
	adapter, rec := newTestAdapter(t, Config{})
	payload := `{"service":"sample","action":"get","params":{"id":"abc"},"meta":{"correlation_id":"c-1"}}`
	if env := handle(t, adapter, payload); !env.Success {
		t.Fatalf("envelope = %+v, want success", env)
	}

	got := rec.last(t)
	if got.action != "sample.get" {
		t.Errorf("action = %q, want sample.get", got.action)
	}
	if got.params["id"] != "abc" {
		t.Errorf("params = %v, want id abc", got.params)
	}
	if got.meta["correlation_id"] != "c-1" || got.meta["shape"] != "direct" {
		t.Errorf("meta = %v, want correlation_id and direct shape", got.meta)
	}
}

func TestClassifyFallback(t *testing.T) {
	adapter, rec := newTestAdapter(t, Config{})
	if env := handle(t, adapter, `{"something":"odd"}`); !env.Success {
		t.Fatalf("envelope = %+v, want success", env)
	}

	got := rec.last(t)
	if got.action != "sample.processNotification" {
		t.Errorf("action = %q, want default action", got.action)
	}
	if got.params["something"] != "odd" {
		t.Errorf("params = %v, want whole payload", got.params)
	}
}

func TestClassifyNonObjectPayload(t *testing.T) {
	adapter, rec := newTestAdapter(t, Config{})
	if env := handle(t, adapter, `[1,2,3]`); !env.Success {
		t.Fatalf("envelope = %+v, want success", env)
	}
	got := rec.last(t)
	if _, ok := got.params["body"].([]any); !ok {
		t.Errorf("params[body] = %T, want decoded array", got.params["body"])
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	adapter, rec := newTestAdapter(t, Config{})
	env := handle(t, adapter, `{not json`)
	if env.Success || env.Error.Code != string(domain.KindValidation) {
		t.Errorf("envelope = %+v, want VALIDATION_ERROR", env)
	}
	if rec.count() != 0 {
		t.Errorf("handler called %d times, want 0", rec.count())
	}
}

func TestOversizeEventNeverReachesHandler(t *testing.T) {
	adapter, rec := newTestAdapter(t, Config{MaxEventBytes: 64})
	payload := `{"httpMethod":"GET","path":"/sample","body":"` + strings.Repeat("x", 200) + `"}`

	env := handle(t, adapter, payload)
	if env.Success || env.Error.Code != string(domain.KindPayloadTooLarge) {
		t.Errorf("envelope = %+v, want PAYLOAD_TOO_LARGE", env)
	}
	if rec.count() != 0 {
		t.Errorf("handler called %d times, want 0", rec.count())
	}
}

func TestConfiguredActionsOverrideDefaults(t *testing.T) {
	adapter, rec := newTestAdapter(t, Config{
		QueueAction:   "sample.update",
		NotifyAction:  "sample.remove",
		DefaultAction: "sample.list",
	})

	handle(t, adapter, `{"Records":[{"eventSource":"aws:sqs","body":"{\"id\":\"x\"}"}]}`)
	if got := rec.last(t); got.action != "sample.update" {
		t.Errorf("batch action = %q, want sample.update", got.action)
	}

	handle(t, adapter, `{"unshaped":true}`)
	if got := rec.last(t); got.action != "sample.list" {
		t.Errorf("fallback action = %q, want sample.list", got.action)
	}
}

func TestNewAdapterRejectsBadActionKey(t *testing.T) {
	reg := dispatch.NewRegistry()
	router := dispatch.NewRouter(dispatch.Config{}, reg, resilience.NewRegistry(resilience.DefaultConfig))
	if _, err := NewAdapter(Config{QueueAction: "no-dot"}, router); err == nil {
		t.Error("NewAdapter accepted malformed queue_action")
	}
}

func TestEnvelopeReturnedVerbatimOnHandlerError(t *testing.T) {
	rec := &recorder{}
	reg := dispatch.NewRegistry()
	mustRegister := func(action string, h dispatch.Handler) {
		if err := reg.Register(domain.NewActionKey("sample", action), h); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	mustRegister("get", func(context.Context, map[string]any, map[string]any) (any, error) {
		return nil, domain.NotFoundf("sample missing")
	})
	mustRegister("processNotification", rec.handler("sample.processNotification"))
	router := dispatch.NewRouter(dispatch.Config{}, reg, resilience.NewRegistry(resilience.DefaultConfig))
	adapter, err := NewAdapter(Config{}, router)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	env := handle(t, adapter, `{"httpMethod":"GET","path":"/sample/42"}`)
	if env.Success || env.Error.Code != string(domain.KindNotFound) {
		t.Errorf("envelope = %+v, want NOT_FOUND passed through", env)
	}
	if env.Error.Message != "sample missing" {
		t.Errorf("message = %q, want handler message preserved", env.Error.Message)
	}
}

func TestRunnerInvoke(t *testing.T) {
	adapter, _ := newTestAdapter(t, Config{})
	runner := NewRunner(adapter)

	resp, err := runner.Invoke(context.Background(), &InvokeRequest{
		Payload: json.RawMessage(`{"httpMethod":"GET","path":"/sample"}`),
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	var env domain.Envelope
	if err := json.Unmarshal(resp.Envelope, &env); err != nil {
		t.Fatalf("envelope does not decode: %v", err)
	}
	if !env.Success {
		t.Errorf("envelope = %+v, want success", env)
	}
}

func TestRunnerRejectsEmptyPayload(t *testing.T) {
	adapter, _ := newTestAdapter(t, Config{})
	runner := NewRunner(adapter)

	_, err := runner.Invoke(context.Background(), &InvokeRequest{})
	if err == nil {
		t.Fatal("Invoke accepted empty payload")
	}
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("status = %v, want InvalidArgument", status.Code(err))
	}
}
