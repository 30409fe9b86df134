package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// SeedProduct inserts a product priced at price with stock units available.
func SeedProduct(t *testing.T, conn *gorm.DB, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		Title:     "product-" + uuid.NewString()[:8],
		BasePrice: decimal.RequireFromString(price),
		Stock:     stock,
	}
	require.NoError(t, conn.Create(&product).Error)
	return product
}

// SeedVariant inserts a variant of product with its own list price and quantity.
func SeedVariant(t *testing.T, conn *gorm.DB, product models.Product, price string, quantity int) models.Variant {
	t.Helper()
	variant := models.Variant{
		ProductID: product.ID,
		Size:      "M",
		Color:     "black",
		Price:     decimal.RequireFromString(price),
		Quantity:  quantity,
	}
	require.NoError(t, conn.Create(&variant).Error)
	return variant
}

// ItemSeed is one line of a seeded order.
type ItemSeed struct {
	Product   models.Product
	VariantID *uuid.UUID
	UnitPrice string
	Quantity  int
}

// OrderSeed describes an order to insert directly, bypassing checkout.
type OrderSeed struct {
	UserID          uuid.UUID
	Method          enums.PaymentMethod
	Status          enums.OrderStatus
	PaymentIntentID string
	IsPaid          bool
	StockCommitted  bool
	FromCart        bool
	Items           []ItemSeed
}

// SeedOrder inserts an order whose amount_paid is the sum of its lines.
func SeedOrder(t *testing.T, conn *gorm.DB, seed OrderSeed) models.Order {
	t.Helper()
	if seed.UserID == uuid.Nil {
		seed.UserID = uuid.New()
	}
	if seed.Method == "" {
		seed.Method = enums.PaymentMethodCard
	}
	if seed.Status == "" {
		seed.Status = enums.OrderStatusProcessing
	}
	order := models.Order{
		ID:             uuid.New(),
		UserID:         seed.UserID,
		PaymentMethod:  seed.Method,
		Currency:       "usd",
		AmountPaid:     decimal.Zero,
		Status:         seed.Status,
		IsPaid:         seed.IsPaid,
		StockCommitted: seed.StockCommitted,
		FromCart:       seed.FromCart,
	}
	if seed.PaymentIntentID != "" {
		pi := seed.PaymentIntentID
		order.PaymentIntentID = &pi
	}
	for i, item := range seed.Items {
		price := decimal.RequireFromString(item.UnitPrice)
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			Position:  i,
			ProductID: item.Product.ID,
			VariantID: item.VariantID,
			UnitPrice: price,
			Quantity:  item.Quantity,
		})
		order.AmountPaid = order.AmountPaid.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	require.NoError(t, conn.Create(&order).Error)
	return order
}
