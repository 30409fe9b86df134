package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// EventLedger remembers which gateway events have been applied.
type EventLedger interface {
	// Record inserts the event inside tx and reports false when it was
	// already present.
	Record(ctx context.Context, tx *gorm.DB, event Event, orderID *uuid.UUID, at time.Time) (bool, error)
}

type eventLedger struct{}

func NewEventLedger() EventLedger {
	return eventLedger{}
}

func (eventLedger) Record(ctx context.Context, tx *gorm.DB, event Event, orderID *uuid.UUID, at time.Time) (bool, error) {
	row := models.ProcessedWebhookEvent{
		EventID:     event.ID,
		EventType:   event.Type,
		OrderID:     orderID,
		ProcessedAt: at,
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
