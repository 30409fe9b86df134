package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

func paidEvent(order *models.Order, intentID string, paidAt time.Time) payloads.OrderPaidEvent {
	return payloads.OrderPaidEvent{
		OrderID:         order.ID,
		UserID:          order.UserID,
		PaymentIntentID: intentID,
		Amount:          order.AmountPaid,
		PaidAt:          paidAt,
	}
}

func oversoldEvent(order *models.Order, intentID, refundID, reason string) payloads.OrderOversoldEvent {
	return payloads.OrderOversoldEvent{
		OrderID:         order.ID,
		UserID:          order.UserID,
		PaymentIntentID: intentID,
		GatewayRefundID: refundID,
		Reason:          reason,
	}
}

func refundedEvent(order *models.Order, result *refundResult, refunded decimal.Decimal) payloads.OrderRefundedEvent {
	return payloads.OrderRefundedEvent{
		OrderID:         order.ID,
		UserID:          order.UserID,
		Status:          result.status,
		AmountRefunded:  refunded,
		AmountRemaining: result.remaining,
		RestockedUnits:  result.restocked,
	}
}
