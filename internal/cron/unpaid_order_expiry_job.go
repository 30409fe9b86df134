package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	defaultUnpaidOrderTTL = 48 * time.Hour
	defaultExpiryBatch    = 100
)

type intentCanceller interface {
	CancelIntent(ctx context.Context, intentID string) error
}

// UnpaidOrderExpiryJobParams configure the unpaid card order sweeper.
type UnpaidOrderExpiryJobParams struct {
	Logger            *logger.Logger
	TransactionRunner db.TxRunner
	Orders            orders.Repository
	Gateway           intentCanceller
	Outbox            outbox.Emitter
	TTL               time.Duration
	BatchSize         int
	Clock             func() time.Time
}

// NewUnpaidOrderExpiryJob builds the job that cancels card orders whose
// payment never arrived.
func NewUnpaidOrderExpiryJob(params UnpaidOrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultUnpaidOrderTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &unpaidOrderExpiryJob{
		logg:    params.Logger,
		tx:      params.TransactionRunner,
		orders:  params.Orders,
		gateway: params.Gateway,
		outbox:  params.Outbox,
		ttl:     ttl,
		batch:   batch,
		now:     clock,
	}, nil
}

type unpaidOrderExpiryJob struct {
	logg    *logger.Logger
	tx      db.TxRunner
	orders  orders.Repository
	gateway intentCanceller
	outbox  outbox.Emitter
	ttl     time.Duration
	batch   int
	now     func() time.Time
}

func (j *unpaidOrderExpiryJob) Name() string { return "unpaid-order-expiry" }

// Run expires one batch. A failing order does not stop the others.
func (j *unpaidOrderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.orders.FindUnpaidCardBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query unpaid orders: %w", err)
	}

	var errs error
	expired := 0
	for i := range stale {
		ok, err := j.expire(ctx, &stale[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", stale[i].ID, err))
			continue
		}
		if ok {
			expired++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"found":   len(stale),
		"expired": expired,
	})
	j.logg.Info(logCtx, "unpaid order expiry complete")
	return errs
}

func (j *unpaidOrderExpiryJob) expire(ctx context.Context, order *models.Order) (bool, error) {
	var expired bool
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.orders.WithTx(tx).CancelUnpaid(ctx, order.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if order.PaymentIntentID != nil {
			if err := j.gateway.CancelIntent(ctx, *order.PaymentIntentID); err != nil {
				return err
			}
		}
		now := j.now().UTC()
		if err := j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    now,
			Data: payloads.OrderExpiredEvent{
				OrderID:         order.ID,
				UserID:          order.UserID,
				PaymentIntentID: order.PaymentIntentID,
				ExpiredAt:       now,
			},
		}); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}
