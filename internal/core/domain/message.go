package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueueMessage is the wire shape carried by relay queues. Data is opaque to
// the transport; the consumer hands it to the configured action as-is.
type QueueMessage struct {
	Data json.RawMessage `json:"data"`
	Meta MessageMeta     `json:"meta"`
}

// MessageMeta carries delivery metadata. Attempts counts deliveries so far
// and drives the requeue policy.
type MessageMeta struct {
	Timestamp time.Time      `json:"timestamp"`
	Attempts  int            `json:"attempts,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// NewQueueMessage wraps data as a queue message stamped with the current
// time.
func NewQueueMessage(data any) (*QueueMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal message data: %w", err)
	}
	return &QueueMessage{
		Data: raw,
		Meta: MessageMeta{Timestamp: time.Now().UTC()},
	}, nil
}

// Encode serializes the message for the queue transport.
func (m *QueueMessage) Encode() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode queue message: %w", err)
	}
	return raw, nil
}

// DecodeQueueMessage parses a raw queue payload. Payloads that are not valid
// JSON objects in the {data, meta} shape are rejected; the consumer treats
// that as a permanently failing message.
func DecodeQueueMessage(raw []byte) (*QueueMessage, error) {
	var m QueueMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode queue message: %w", err)
	}
	if len(m.Data) == 0 {
		return nil, fmt.Errorf("decode queue message: missing data field")
	}
	return &m, nil
}

// DataMap decodes Data into a parameter map. Non-object payloads are wrapped
// under a "body" key so handlers always receive a map.
func (m *QueueMessage) DataMap() map[string]any {
	var params map[string]any
	if err := json.Unmarshal(m.Data, &params); err == nil && params != nil {
		return params
	}
	var v any
	if err := json.Unmarshal(m.Data, &v); err == nil {
		return map[string]any{"body": v}
	}
	return map[string]any{"body": string(m.Data)}
}
