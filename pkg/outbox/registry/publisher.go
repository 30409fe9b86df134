// Package registry routes outbox rows to sink topics and decodes their typed
// payloads before publishing.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type Topics struct {
	Orders  string
	Coupons string
}

// EventDescriptor binds an event type to its aggregate, topic and payload
// schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish; the dispatcher
// dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func schema[T any]() func() any {
	return func() any { return new(T) }
}

var orderEvents = map[enums.OutboxEventType]func() any{
	enums.EventOrderCreated:           schema[payloads.OrderCreatedEvent](),
	enums.EventOrderPaid:              schema[payloads.OrderPaidEvent](),
	enums.EventOrderOversold:          schema[payloads.OrderOversoldEvent](),
	enums.EventOrderStatusChanged:     schema[payloads.OrderStatusChangedEvent](),
	enums.EventOrderExpired:           schema[payloads.OrderExpiredEvent](),
	enums.EventOrderRefundInitiated:   schema[payloads.OrderRefundInitiatedEvent](),
	enums.EventOrderRefunded:          schema[payloads.OrderRefundedEvent](),
	enums.EventOrderPartiallyRefunded: schema[payloads.OrderRefundedEvent](),
}

var couponEvents = map[enums.OutboxEventType]func() any{
	enums.EventCouponRedeemed: schema[payloads.CouponRedeemedEvent](),
}

// NewEventRegistry wires order events to topics.Orders and coupon events to
// topics.Coupons. Both topics are required.
func NewEventRegistry(topics Topics) (*EventRegistry, error) {
	var missing []error
	if topics.Orders == "" {
		missing = append(missing, errors.New("orders topic is required"))
	}
	if topics.Coupons == "" {
		missing = append(missing, errors.New("coupons topic is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(orderEvents)+len(couponEvents))}
	reg.add(enums.AggregateOrder, topics.Orders, orderEvents)
	reg.add(enums.AggregateCoupon, topics.Coupons, couponEvents)
	return reg, nil
}

func (r *EventRegistry) add(aggregate enums.OutboxAggregateType, topic string, events map[enums.OutboxEventType]func() any) {
	for eventType, factory := range events {
		r.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  aggregate,
			Topic:          topic,
			PayloadFactory: factory,
		}
	}
}

// TopicNames lists each distinct destination once, in no particular order.
func (r *EventRegistry) TopicNames() []string {
	seen := make(map[string]bool, 2)
	var names []string
	for _, desc := range r.entries {
		if !seen[desc.Topic] {
			seen[desc.Topic] = true
			names = append(names, desc.Topic)
		}
	}
	return names
}

// Resolve checks a row against its descriptor and decodes the envelope and
// payload. Every failure is a NonRetryableError since the row will not change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	switch {
	case envelope.Version > outbox.EnvelopeVersion:
		return nil, permanent("envelope version %d is newer than %d", envelope.Version, outbox.EnvelopeVersion)
	case envelope.EventID == "":
		return nil, permanent("envelope has no event id")
	case envelope.EventType != "" && envelope.EventType != event.EventType:
		return nil, permanent("envelope type %s disagrees with row type %s", envelope.EventType, event.EventType)
	}

	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("payload missing for %s", event.EventType)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
