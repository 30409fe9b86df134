package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// Snapshot is an immutable copy of a cart taken at checkout.
type Snapshot struct {
	CartID        uuid.UUID
	UserID        uuid.UUID
	Items         []SnapshotItem
	AppliedCoupon *string
}

// SnapshotItem is one cart line as priced when it was saved.
type SnapshotItem struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Size      string
	Color     string
	Price     decimal.Decimal
	Count     int
}

// Total is the pre-discount sum of price*count.
func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(money.LineTotal(item.Price, item.Count))
	}
	return total
}

func snapshotOf(cart *models.Cart) *Snapshot {
	snap := &Snapshot{
		CartID:        cart.ID,
		UserID:        cart.UserID,
		Items:         make([]SnapshotItem, 0, len(cart.Items)),
		AppliedCoupon: cart.AppliedCouponCode,
	}
	for _, item := range cart.Items {
		var variantID *uuid.UUID
		if item.VariantID != nil {
			id := *item.VariantID
			variantID = &id
		}
		snap.Items = append(snap.Items, SnapshotItem{
			ProductID: item.ProductID,
			VariantID: variantID,
			Size:      item.Size,
			Color:     item.Color,
			Price:     item.Price,
			Count:     item.Count,
		})
	}
	return snap
}
