package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout persists a new order.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID           `json:"order_id"`
	UserID          uuid.UUID           `json:"user_id"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	PaymentIntentID *string             `json:"payment_intent_id,omitempty"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	CouponCode      *string             `json:"coupon_code,omitempty"`
	ItemCount       int                 `json:"item_count"`
}

// OrderPaidEvent is emitted once payment is confirmed and stock committed.
type OrderPaidEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	UserID          uuid.UUID       `json:"user_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaidAt          time.Time       `json:"paid_at"`
}

// OrderOversoldEvent reports a payment that could not be fulfilled from stock
// and was refunded automatically.
type OrderOversoldEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	UserID          uuid.UUID `json:"user_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	GatewayRefundID string    `json:"gateway_refund_id"`
	Reason          string    `json:"reason"`
}

// OrderStatusChangedEvent is emitted on operator status updates.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	UserID     uuid.UUID         `json:"user_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
}

// OrderExpiredEvent is emitted when an unpaid card order times out.
type OrderExpiredEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	UserID          uuid.UUID `json:"user_id"`
	PaymentIntentID *string   `json:"payment_intent_id,omitempty"`
	ExpiredAt       time.Time `json:"expired_at"`
}

// RefundItem is one line of a partial refund.
type RefundItem struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	Quantity    int       `json:"quantity"`
}

// OrderRefundInitiatedEvent is emitted when an admin asks the gateway for money back.
type OrderRefundInitiatedEvent struct {
	OrderID         uuid.UUID        `json:"order_id"`
	RefundID        uuid.UUID        `json:"refund_id"`
	Kind            enums.RefundKind `json:"kind"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	GatewayRefundID string           `json:"gateway_refund_id"`
	Items           []RefundItem     `json:"items,omitempty"`
}

// OrderRefundedEvent is emitted when a refund confirmation is reconciled.
type OrderRefundedEvent struct {
	OrderID         uuid.UUID         `json:"order_id"`
	UserID          uuid.UUID         `json:"user_id"`
	Status          enums.OrderStatus `json:"status"`
	AmountRefunded  decimal.Decimal   `json:"amount_refunded"`
	AmountRemaining decimal.Decimal   `json:"amount_remaining"`
	RestockedUnits  int               `json:"restocked_units"`
}

// CouponRedeemedEvent is emitted when a coupon is consumed by a paid order.
type CouponRedeemedEvent struct {
	CouponID uuid.UUID `json:"coupon_id"`
	Code     string    `json:"code"`
	UserID   uuid.UUID `json:"user_id"`
	OrderID  uuid.UUID `json:"order_id"`
}
