package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Coupon is a percentage discount redeemable once per user.
type Coupon struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Code      string          `gorm:"column:code;not null;uniqueIndex"`
	Expiry    time.Time       `gorm:"column:expiry;not null"`
	Discount  decimal.Decimal `gorm:"column:discount;type:numeric(5,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// CouponRedemption records that a user has redeemed a coupon.
type CouponRedemption struct {
	CouponID  uuid.UUID  `gorm:"column:coupon_id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	OrderID   *uuid.UUID `gorm:"column:order_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
