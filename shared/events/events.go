// Package events defines the message contract for completion activity.
// Producers publish through a Publisher; the AMQP broker and the WebSocket
// hub both satisfy it.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ── Routing keys (RabbitMQ topic exchange: uigen.events) ─────────────────────
const (
	CompletionSucceeded = "completion.succeeded"
	CompletionFailed    = "completion.failed"
	ArtifactProduced    = "artifact.produced"
)

// ── Envelope wraps every message ─────────────────────────────────────────────

type Envelope struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Timestamp  time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func Wrap(routingKey string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.New().String(),
		RoutingKey: routingKey,
		Timestamp:  time.Now(),
		Payload:    p,
	})
}

func Unwrap[T any](raw []byte) (*T, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var t T
	return &t, json.Unmarshal(env.Payload, &t)
}

func UnwrapEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	return &env, json.Unmarshal(raw, &env)
}

// ── Publishing ────────────────────────────────────────────────────────────────

// Publisher delivers an already wrapped envelope under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Discard drops every message.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, string, []byte) error { return nil }

// Emit wraps payload and publishes it. A nil publisher is a no-op.
func Emit(ctx context.Context, p Publisher, routingKey string, payload any) error {
	if p == nil {
		return nil
	}
	b, err := Wrap(routingKey, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, routingKey, b)
}

// ── Payload types ─────────────────────────────────────────────────────────────

type CompletionPayload struct {
	RequestID  string `json:"request_id"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Streaming  bool   `json:"streaming"`
	Chunks     int    `json:"chunks,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Kind       string `json:"kind,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ArtifactProducedPayload struct {
	SessionID string `json:"session_id"`
	Origin    string `json:"origin"`
	Language  string `json:"language"`
	Filename  string `json:"filename"`
	Bytes     int    `json:"bytes"`
}
