// Package events carries order line changes to Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TopicLinePlaced    = "order.line.placed"
	TopicLineProcessed = "order.line.processed"
	TopicLineHidden    = "order.line.hidden"
)

// Topics lists every topic the service publishes.
var Topics = []string{TopicLinePlaced, TopicLineProcessed, TopicLineHidden}

// Envelope wraps every payload written to Kafka.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// LinePlaced is published for every line captured at checkout.
type LinePlaced struct {
	LineID     string `json:"lineId"`
	BasketID   string `json:"basketId"`
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	TotalCents int64  `json:"totalCents"`
	Channel    string `json:"channel"`
	Customer   string `json:"customer,omitempty"`
}

// LineProcessed is published when a line is marked processed.
type LineProcessed struct {
	LineID    string `json:"lineId"`
	BasketKey string `json:"basketKey"`
}

// LineHidden is published when a line's visibility flips.
type LineHidden struct {
	LineID string `json:"lineId"`
	Hidden bool   `json:"hidden"`
}

// NewEnvelope encodes payload under a fresh event id.
func NewEnvelope(topic string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       topic,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// DecodePayload unwraps the envelope payload into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return t, nil
}
