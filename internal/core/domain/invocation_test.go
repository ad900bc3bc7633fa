package domain

import (
	"testing"
	"time"
)

func TestParseActionKey(t *testing.T) {
	tests := []struct {
		in      string
		expect  ActionKey
		wantErr bool
	}{
		{"sample.list", ActionKey{Service: "sample", Action: "list"}, false},
		{"sample.processQueueMessage", ActionKey{Service: "sample", Action: "processQueueMessage"}, false},
		{"noaction", ActionKey{}, true},
		{".action", ActionKey{}, true},
		{"service.", ActionKey{}, true},
		{"", ActionKey{}, true},
	}

	for _, tt := range tests {
		got, err := ParseActionKey(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseActionKey(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseActionKey(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.expect {
			t.Errorf("ParseActionKey(%q) = %v, want %v", tt.in, got, tt.expect)
		}
	}
}

func TestActionKeyRoundTrip(t *testing.T) {
	key := NewActionKey("sample", "get")
	if key.String() != "sample.get" {
		t.Fatalf("String() = %q", key.String())
	}
	parsed, err := ParseActionKey(key.String())
	if err != nil || parsed != key {
		t.Fatalf("round trip failed: %v, %v", parsed, err)
	}
}

func TestNewInvocationDefaults(t *testing.T) {
	inv := NewInvocation(NewActionKey("sample", "list"), nil, nil)
	if inv.RequestID == "" {
		t.Error("request id must be assigned")
	}
	if inv.Params == nil || inv.Meta == nil {
		t.Error("maps must be non-nil")
	}

	other := NewInvocation(NewActionKey("sample", "list"), nil, nil)
	if other.RequestID == inv.RequestID {
		t.Error("request ids must be unique")
	}
}

func TestTimeoutOverride(t *testing.T) {
	tests := []struct {
		name   string
		meta   map[string]any
		expect time.Duration
		ok     bool
	}{
		{"absent", map[string]any{}, 0, false},
		{"int", map[string]any{MetaTimeoutMS: 1500}, 1500 * time.Millisecond, true},
		{"json float", map[string]any{MetaTimeoutMS: float64(250)}, 250 * time.Millisecond, true},
		{"zero ignored", map[string]any{MetaTimeoutMS: 0}, 0, false},
		{"wrong type ignored", map[string]any{MetaTimeoutMS: "1000"}, 0, false},
	}

	for _, tt := range tests {
		inv := NewInvocation(NewActionKey("sample", "get"), nil, tt.meta)
		got, ok := inv.TimeoutOverride()
		if ok != tt.ok || (ok && got != tt.expect) {
			t.Errorf("%s: TimeoutOverride = (%v, %v), want (%v, %v)", tt.name, got, ok, tt.expect, tt.ok)
		}
	}
}
