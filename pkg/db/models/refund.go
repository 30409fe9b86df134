package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Refund audits one admin-initiated refund request.
type Refund struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	Kind            enums.RefundKind   `gorm:"column:kind;not null"`
	Amount          *decimal.Decimal   `gorm:"column:amount;type:numeric(12,2)"`
	GatewayRefundID *string            `gorm:"column:gateway_refund_id"`
	Status          enums.RefundStatus `gorm:"column:status;not null"`
	InitiatedBy     uuid.UUID          `gorm:"column:initiated_by;type:uuid;not null"`
	Items           json.RawMessage    `gorm:"column:items;type:jsonb"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
