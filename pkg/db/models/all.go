package models

import "github.com/google/uuid"

// All lists every persisted model; used by AutoMigrate in tests.
func All() []any {
	return []any{
		&Product{},
		&Variant{},
		&Coupon{},
		&CouponRedemption{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderLineItem{},
		&Refund{},
		&ProcessedWebhookEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

// assignID gives a row a client-side UUID so callers know it before insert.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
