package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Cart is the per-user singleton cart.
type Cart struct {
	ID                    uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	UserID                uuid.UUID        `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	CartTotal             decimal.Decimal  `gorm:"column:cart_total;type:numeric(12,2);not null"`
	TotalAfterDiscount    *decimal.Decimal `gorm:"column:total_after_discount;type:numeric(12,2)"`
	AppliedCouponCode     *string          `gorm:"column:applied_coupon_code"`
	AppliedCouponDiscount *decimal.Decimal `gorm:"column:applied_coupon_discount;type:numeric(5,2)"`
	CreatedAt             time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	Items []CartItem `gorm:"foreignKey:CartID"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// CartItem is one product/variant line in a cart.
type CartItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;index"`
	Position  int             `gorm:"column:position;not null"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	Size      string          `gorm:"column:size"`
	Color     string          `gorm:"column:color"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Count     int             `gorm:"column:count;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
