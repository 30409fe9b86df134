package enums

import "fmt"

// RefundStatus tracks a refund record from request to gateway confirmation.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

// String implements fmt.Stringer.
func (r RefundStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundStatus.
func (r RefundStatus) IsValid() bool {
	switch r {
	case RefundStatusPending, RefundStatusSucceeded, RefundStatusFailed:
		return true
	default:
		return false
	}
}

// RefundKind distinguishes whole-order refunds from per-item ones.
type RefundKind string

const (
	RefundKindFull    RefundKind = "full"
	RefundKindPartial RefundKind = "partial"
)

// ParseRefundKind converts raw input into a RefundKind.
func ParseRefundKind(value string) (RefundKind, error) {
	switch RefundKind(value) {
	case RefundKindFull, RefundKindPartial:
		return RefundKind(value), nil
	}
	return "", fmt.Errorf("invalid refund kind %q", value)
}
