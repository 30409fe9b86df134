package orderdto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type Order struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"userId"`
	PaymentMethod   enums.PaymentMethod `json:"paymentMethod"`
	PaymentIntentID *string             `json:"paymentIntentId,omitempty"`
	Currency        string              `json:"currency"`
	Status          enums.OrderStatus   `json:"status"`
	IsPaid          bool                `json:"isPaid"`
	PaidAt          *time.Time          `json:"paidAt,omitempty"`
	AmountPaid      decimal.Decimal     `json:"amountPaid"`
	AppliedCoupon   *AppliedCoupon      `json:"appliedCoupon,omitempty"`
	ShippingAddress string              `json:"shippingAddress,omitempty"`
	Items           []OrderItem         `json:"items"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

type AppliedCoupon struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

type OrderItem struct {
	ID                    uuid.UUID       `json:"id"`
	ProductID             uuid.UUID       `json:"productId"`
	VariantID             *uuid.UUID      `json:"variantId,omitempty"`
	Size                  string          `json:"size,omitempty"`
	Color                 string          `json:"color,omitempty"`
	UnitPrice             decimal.Decimal `json:"unitPrice"`
	Quantity              int             `json:"quantity"`
	RefundedQuantity      int             `json:"refundedQuantity"`
	PendingRefundQuantity int             `json:"pendingRefundQuantity"`
}

type OrderPage struct {
	Items      []Order `json:"items"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// StatusUpdateRequest is the operator's requested lifecycle status.
type StatusUpdateRequest struct {
	Status enums.OrderStatus `json:"status" validate:"required"`
}

// PartialRefundRequest lists order lines and the units to refund.
type PartialRefundRequest struct {
	Items []PartialRefundItem `json:"items" validate:"required,min=1,dive"`
}

type PartialRefundItem struct {
	OrderItemID uuid.UUID `json:"orderItemId" validate:"required"`
	Quantity    int       `json:"quantity" validate:"gt=0"`
}

func NewOrder(order *models.Order) Order {
	if order == nil {
		return Order{Items: []OrderItem{}}
	}
	out := Order{
		ID:              order.ID,
		UserID:          order.UserID,
		PaymentMethod:   order.PaymentMethod,
		PaymentIntentID: order.PaymentIntentID,
		Currency:        order.Currency,
		Status:          order.Status,
		IsPaid:          order.IsPaid,
		PaidAt:          order.PaidAt,
		AmountPaid:      order.AmountPaid,
		ShippingAddress: order.ShippingAddress,
		Items:           make([]OrderItem, 0, len(order.LineItems)),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	if order.AppliedCouponCode != nil && order.AppliedCouponDiscount != nil {
		out.AppliedCoupon = &AppliedCoupon{
			Code:     *order.AppliedCouponCode,
			Discount: *order.AppliedCouponDiscount,
		}
	}
	for _, item := range order.LineItems {
		out.Items = append(out.Items, OrderItem{
			ID:                    item.ID,
			ProductID:             item.ProductID,
			VariantID:             item.VariantID,
			Size:                  item.Size,
			Color:                 item.Color,
			UnitPrice:             item.UnitPrice,
			Quantity:              item.Quantity,
			RefundedQuantity:      item.RefundedQty,
			PendingRefundQuantity: item.PendingRefundQty,
		})
	}
	return out
}

func NewOrderPage(page *pagination.Page[models.Order]) OrderPage {
	out := OrderPage{Items: []Order{}}
	if page == nil {
		return out
	}
	out.NextCursor = page.NextCursor
	for i := range page.Items {
		out.Items = append(out.Items, NewOrder(&page.Items[i]))
	}
	return out
}
