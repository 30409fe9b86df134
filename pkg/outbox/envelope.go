package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ActorRef is the user who triggered an order or coupon event. Webhook and
// cron driven events leave it nil.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is what lands in outbox_events.payload and on the sink.
// EventType and AggregateID are repeated here so subscribers need not read
// transport attributes.
type PayloadEnvelope struct {
	Version     int                   `json:"version"`
	EventID     string                `json:"eventId"`
	EventType   enums.OutboxEventType `json:"eventType,omitempty"`
	AggregateID uuid.UUID             `json:"aggregateId"`
	OccurredAt  time.Time             `json:"occurredAt"`
	Actor       *ActorRef             `json:"actor,omitempty"`
	Data        json.RawMessage       `json:"data"`
}

// EnvelopeVersion is the envelope schema written by Emit. Publishers refuse
// rows stamped with a newer version.
const EnvelopeVersion = 1

func newEnvelope(event DomainEvent, data json.RawMessage) PayloadEnvelope {
	version := event.Version
	if version == 0 {
		version = EnvelopeVersion
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return PayloadEnvelope{
		Version:     version,
		EventID:     uuid.NewString(),
		EventType:   event.EventType,
		AggregateID: event.AggregateID,
		OccurredAt:  occurred.UTC(),
		Actor:       event.Actor,
		Data:        data,
	}
}
