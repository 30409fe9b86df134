package enums

import "fmt"

// OrderStatus is the lifecycle state stored on orders.status.
type OrderStatus string

const (
	OrderStatusProcessing        OrderStatus = "Processing"
	OrderStatusShipped           OrderStatus = "Shipped"
	OrderStatusDelivered         OrderStatus = "Delivered"
	OrderStatusCancelled         OrderStatus = "Cancelled"
	OrderStatusRefundInitiated   OrderStatus = "Refund Initiated"
	OrderStatusRefunded          OrderStatus = "Refunded"
	OrderStatusPartiallyRefunded OrderStatus = "Partially Refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefundInitiated,
	OrderStatusRefunded,
	OrderStatusPartiallyRefunded,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// AdminSettable reports whether an operator may move an order into s directly.
// Refund states are only reached through the refund flow.
func (s OrderStatus) AdminSettable() bool {
	return s.IsValid() && !s.IsRefundState()
}

// IsRefundState reports whether s belongs to the refund track.
func (s OrderStatus) IsRefundState() bool {
	switch s {
	case OrderStatusRefundInitiated, OrderStatusRefunded, OrderStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
