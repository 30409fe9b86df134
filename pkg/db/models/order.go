package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the aggregate root persisted by the orders repository.
type Order struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID                uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	PaymentMethod         enums.PaymentMethod `gorm:"column:payment_method;not null"`
	Currency              string              `gorm:"column:currency;not null"`
	PaymentIntentID       *string             `gorm:"column:payment_intent_id;uniqueIndex"`
	AppliedCouponCode     *string             `gorm:"column:applied_coupon_code"`
	AppliedCouponDiscount *decimal.Decimal    `gorm:"column:applied_coupon_discount;type:numeric(5,2)"`
	AmountPaid            decimal.Decimal     `gorm:"column:amount_paid;type:numeric(12,2);not null"`
	Status                enums.OrderStatus   `gorm:"column:status;not null;index"`
	IsPaid                bool                `gorm:"column:is_paid;not null;default:false"`
	PaidAt                *time.Time          `gorm:"column:paid_at"`
	StockCommitted        bool                `gorm:"column:stock_committed;not null;default:false"`
	ShippingAddress       string              `gorm:"column:shipping_address"`
	FromCart              bool                `gorm:"column:from_cart;not null;default:false"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	LineItems []OrderLineItem `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
