package outbox

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Message is a broker-neutral rendition of an outbox row.
type Message struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Sink delivers messages to a broker. Publish returns once the broker has
// acknowledged the message.
type Sink interface {
	Publish(ctx context.Context, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}

// NewMessage builds the message for event on topic. The aggregate id is the
// key so brokers that partition keep per-order ordering.
func NewMessage(topic, eventID string, event models.OutboxEvent) Message {
	return Message{
		Topic: topic,
		Key:   event.AggregateID.String(),
		Data:  event.Payload,
		Attributes: map[string]string{
			"event_id":       eventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}
