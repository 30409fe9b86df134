package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderStatusParsing(t *testing.T) {
	status, err := ParseOrderStatus("Partially Refunded")
	require.NoError(t, err)
	require.Equal(t, OrderStatusPartiallyRefunded, status)
	require.True(t, status.IsRefundState())
	require.False(t, status.AdminSettable())

	_, err = ParseOrderStatus("processing")
	require.Error(t, err)
}

func TestOrderStatusAdminSettable(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled} {
		require.True(t, s.AdminSettable(), s)
	}
	for _, s := range []OrderStatus{OrderStatusRefundInitiated, OrderStatusRefunded, OrderStatusPartiallyRefunded} {
		require.False(t, s.AdminSettable(), s)
	}
}

func TestPaymentMethodAndRefundKind(t *testing.T) {
	m, err := ParsePaymentMethod("cod")
	require.NoError(t, err)
	require.Equal(t, PaymentMethodCOD, m)
	_, err = ParsePaymentMethod("cash")
	require.Error(t, err)
	require.True(t, PaymentMethodCard.SettlesThroughGateway())
	require.False(t, PaymentMethodCOD.SettlesThroughGateway())

	k, err := ParseRefundKind("partial")
	require.NoError(t, err)
	require.Equal(t, RefundKindPartial, k)
	_, err = ParseRefundKind("half")
	require.Error(t, err)
}

func TestOutboxTypes(t *testing.T) {
	require.True(t, EventOrderPartiallyRefunded.IsValid())
	require.False(t, OutboxEventType("ad_created").IsValid())

	agg, err := ParseOutboxAggregateType("coupon")
	require.NoError(t, err)
	require.Equal(t, AggregateCoupon, agg)

	reason, err := ParseOutboxDLQErrorReason("max_attempts")
	require.NoError(t, err)
	require.True(t, reason.IsValid())
}
