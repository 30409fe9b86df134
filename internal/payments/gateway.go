// Package payments adapts the external payment processor to the order flow.
package payments

import (
	"context"
)

// IntentRequest asks the processor to collect AmountCents for one order.
type IntentRequest struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is a created payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
}

// RefundRequest refunds a payment intent. A nil AmountCents refunds whatever
// remains on the charge.
type RefundRequest struct {
	PaymentIntentID string
	AmountCents     *int64
	Metadata        map[string]string
	IdempotencyKey  string
}

// Refund is a refund accepted by the processor. Settlement arrives later as a
// webhook.
type Refund struct {
	ID          string
	Status      string
	AmountCents int64
}

// Gateway is the processor surface used by checkout, refunds and expiry.
// Failures are returned as PAYMENT_GATEWAY_ERROR.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
}

// Metadata keys attached to every intent.
const (
	MetadataOrderID = "orderId"
	MetadataUserID  = "userId"
)
