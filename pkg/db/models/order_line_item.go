package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderLineItem is the checkout-time snapshot of one ordered unit type.
type OrderLineItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	Position         int             `gorm:"column:position;not null"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID        *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	Size             string          `gorm:"column:size"`
	Color            string          `gorm:"column:color"`
	UnitPrice        decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity         int             `gorm:"column:quantity;not null"`
	RefundedQty      int             `gorm:"column:refunded_qty;not null;default:0"`
	PendingRefundQty int             `gorm:"column:pending_refund_qty;not null;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderLineItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
