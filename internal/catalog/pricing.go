package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// FinalPrice resolves the price a variant sells for at now: a flash-deal sale
// price inside its window, else the regular sale price while on sale, else
// the list price.
func FinalPrice(v models.Variant, now time.Time) decimal.Decimal {
	if v.IsFlashDeal && v.SalePrice != nil && inWindow(now, v.SaleStart, v.SaleEnd) {
		return *v.SalePrice
	}
	if v.IsOnSale && v.RegularSalePrice != nil {
		return *v.RegularSalePrice
	}
	return v.Price
}

func inWindow(now time.Time, start, end *time.Time) bool {
	if start != nil && now.Before(*start) {
		return false
	}
	if end != nil && now.After(*end) {
		return false
	}
	return true
}

// UnitPrice is the checkout price for a product, optionally narrowed to one
// of its variants.
func UnitPrice(p models.Product, v *models.Variant, now time.Time) decimal.Decimal {
	if v == nil {
		return p.BasePrice
	}
	return FinalPrice(*v, now)
}
