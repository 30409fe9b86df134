package cartdto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// SaveCartRequest replaces the caller's cart. Prices are taken from the
// catalog, never from the client.
type SaveCartRequest struct {
	Items []SaveCartItem `json:"items" validate:"required,min=1,dive"`
}

type SaveCartItem struct {
	ProductID uuid.UUID  `json:"productId" validate:"required"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
	Count     int        `json:"count" validate:"gt=0"`
}

type Cart struct {
	ID                 uuid.UUID        `json:"id"`
	Items              []CartItem       `json:"items"`
	CartTotal          decimal.Decimal  `json:"cartTotal"`
	TotalAfterDiscount *decimal.Decimal `json:"totalAfterDiscount,omitempty"`
	AppliedCoupon      *AppliedCoupon   `json:"appliedCoupon,omitempty"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

type CartItem struct {
	ProductID uuid.UUID       `json:"productId"`
	VariantID *uuid.UUID      `json:"variantId,omitempty"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Count     int             `json:"count"`
}

type AppliedCoupon struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// NewCart renders a cart record for the API.
func NewCart(record *models.Cart) Cart {
	if record == nil {
		return Cart{Items: []CartItem{}}
	}
	out := Cart{
		ID:                 record.ID,
		Items:              make([]CartItem, 0, len(record.Items)),
		CartTotal:          record.CartTotal,
		TotalAfterDiscount: record.TotalAfterDiscount,
		UpdatedAt:          record.UpdatedAt,
	}
	for _, item := range record.Items {
		out.Items = append(out.Items, CartItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Size:      item.Size,
			Color:     item.Color,
			Price:     item.Price,
			Count:     item.Count,
		})
	}
	if record.AppliedCouponCode != nil && record.AppliedCouponDiscount != nil {
		out.AppliedCoupon = &AppliedCoupon{
			Code:     *record.AppliedCouponCode,
			Discount: *record.AppliedCouponDiscount,
		}
	}
	return out
}
