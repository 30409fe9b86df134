// Package orders owns the order aggregate: line-item refund accounting,
// status transitions and persistence.
package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// RefundableQty is the number of units still eligible for a new refund request.
func RefundableQty(item models.OrderLineItem) int {
	return item.Quantity - item.RefundedQty - item.PendingRefundQty
}

// OutstandingQty is the number of units not yet refunded, pending or not.
func OutstandingQty(item models.OrderLineItem) int {
	return item.Quantity - item.RefundedQty
}

// RemainingAmount is Σ (quantity − refunded) × unit price.
func RemainingAmount(items []models.OrderLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(money.LineTotal(item.UnitPrice, OutstandingQty(item)))
	}
	return total
}

// FullyRefunded reports whether every unit of every item has been refunded.
func FullyRefunded(items []models.OrderLineItem) bool {
	for _, item := range items {
		if item.RefundedQty < item.Quantity {
			return false
		}
	}
	return true
}

// HasPendingRefund reports whether any item waits for a gateway confirmation.
func HasPendingRefund(items []models.OrderLineItem) bool {
	for _, item := range items {
		if item.PendingRefundQty > 0 {
			return true
		}
	}
	return false
}

// ItemRequest asks to refund Quantity units of one line item.
type ItemRequest struct {
	OrderItemID uuid.UUID `json:"orderItemId" validate:"required"`
	Quantity    int       `json:"quantity" validate:"required,gt=0"`
}

// RefundPlan is a validated partial refund.
type RefundPlan struct {
	Items  []ItemRequest
	Amount decimal.Decimal
}

// PlanPartialRefund validates requests against the order's line items and
// prices them at the locked unit price. Repeated ids are summed.
func PlanPartialRefund(items []models.OrderLineItem, requests []ItemRequest) (*RefundPlan, error) {
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	byID := make(map[uuid.UUID]models.OrderLineItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	totals := map[uuid.UUID]int{}
	order := make([]uuid.UUID, 0, len(requests))
	for _, req := range requests {
		if _, ok := byID[req.OrderItemID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found").
				WithDetails(map[string]any{"orderItemId": req.OrderItemID.String()})
		}
		if req.Quantity <= 0 {
			return nil, invalidQuantity(req.OrderItemID)
		}
		if _, seen := totals[req.OrderItemID]; !seen {
			order = append(order, req.OrderItemID)
		}
		totals[req.OrderItemID] += req.Quantity
	}

	plan := &RefundPlan{Amount: decimal.Zero}
	for _, id := range order {
		item := byID[id]
		qty := totals[id]
		if qty > RefundableQty(item) {
			return nil, invalidQuantity(id)
		}
		plan.Items = append(plan.Items, ItemRequest{OrderItemID: id, Quantity: qty})
		plan.Amount = plan.Amount.Add(money.LineTotal(item.UnitPrice, qty))
	}
	if !plan.Amount.IsPositive() {
		return nil, pkgerrors.NewWithReason(pkgerrors.CodeValidation, pkgerrors.ReasonZeroRefund, "refund amount must be positive")
	}
	return plan, nil
}

func invalidQuantity(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "invalid refund quantity").
		WithDetails(map[string]any{
			"reason":      string(pkgerrors.ReasonInvalidRefundQuantity),
			"orderItemId": id.String(),
		})
}

// StockDeltas maps each item to a stock delta of qty(item) units, skipping zeros.
func StockDeltas(items []models.OrderLineItem, qty func(models.OrderLineItem) int) []stock.Delta {
	deltas := make([]stock.Delta, 0, len(items))
	for _, item := range items {
		n := qty(item)
		if n <= 0 {
			continue
		}
		deltas = append(deltas, stock.Delta{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: n})
	}
	return deltas
}

// OrderedQty is the full quantity of an item.
func OrderedQty(item models.OrderLineItem) int {
	return item.Quantity
}
