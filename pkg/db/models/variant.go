package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Variant is a size/color option of a product with its own stock and pricing.
type Variant struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID        uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index"`
	Size             string           `gorm:"column:size"`
	Color            string           `gorm:"column:color"`
	Price            decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity         int              `gorm:"column:quantity;not null;default:0"`
	Sold             int              `gorm:"column:sold;not null;default:0"`
	IsFlashDeal      bool             `gorm:"column:is_flash_deal;not null;default:false"`
	SalePrice        *decimal.Decimal `gorm:"column:sale_price;type:numeric(12,2)"`
	SaleStart        *time.Time       `gorm:"column:sale_start"`
	SaleEnd          *time.Time       `gorm:"column:sale_end"`
	IsOnSale         bool             `gorm:"column:is_on_sale;not null;default:false"`
	RegularSalePrice *decimal.Decimal `gorm:"column:regular_sale_price;type:numeric(12,2)"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Variant) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
