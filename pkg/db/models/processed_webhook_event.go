package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedWebhookEvent is the durable ledger of applied gateway events.
type ProcessedWebhookEvent struct {
	EventID     string     `gorm:"column:event_id;primaryKey"`
	EventType   string     `gorm:"column:event_type;not null"`
	OrderID     *uuid.UUID `gorm:"column:order_id;type:uuid"`
	ProcessedAt time.Time  `gorm:"column:processed_at;not null"`
}
