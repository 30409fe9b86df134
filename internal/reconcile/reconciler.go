// Package reconcile applies payment processor events to orders exactly once.
// Each event runs in one transaction together with its ledger entry, so a
// failure anywhere rolls the whole event back for redelivery.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Event identifies one delivery from the processor.
type Event struct {
	ID   string
	Type string
}

// PaymentConfirmation is decoded from payment_intent.succeeded.
type PaymentConfirmation struct {
	OrderID         uuid.UUID
	PaymentIntentID string
	AmountCents     int64
}

// RefundNotice is decoded from charge.refunded. AmountRefundedCents is
// cumulative over the charge.
type RefundNotice struct {
	PaymentIntentID     string
	AmountRefundedCents int64
	ChargeAmountCents   int64
	FullyRefunded       bool
}

// Outcome describes what an event did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNoop      Outcome = "noop"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeOversold  Outcome = "oversold"
)

type stockLedger interface {
	Commit(ctx context.Context, tx *gorm.DB, deltas []stock.Delta) error
	Restore(ctx context.Context, tx *gorm.DB, deltas []stock.Delta) error
}

type cartClearer interface {
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type refunder interface {
	CreateRefund(ctx context.Context, req payments.RefundRequest) (*payments.Refund, error)
}

type ServiceParams struct {
	TransactionRunner db.TxRunner
	Orders            orders.Repository
	Ledger            EventLedger
	Stock             stockLedger
	Coupons           coupons.Redeemer
	Carts             cartClearer
	Gateway           refunder
	Outbox            outbox.Emitter
	Logger            *logger.Logger
	Clock             func() time.Time
}

// Reconciler drives the paid and refunded transitions of an order.
type Reconciler struct {
	tx      db.TxRunner
	orders  orders.Repository
	ledger  EventLedger
	stock   stockLedger
	coupons coupons.Redeemer
	carts   cartClearer
	gateway refunder
	outbox  outbox.Emitter
	logg    *logger.Logger
	now     func() time.Time
}

func NewReconciler(params ServiceParams) (*Reconciler, error) {
	switch {
	case params.TransactionRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	case params.Stock == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger required")
	case params.Coupons == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon redeemer required")
	case params.Carts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart clearer required")
	case params.Gateway == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	ledger := params.Ledger
	if ledger == nil {
		ledger = NewEventLedger()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Reconciler{
		tx:      params.TransactionRunner,
		orders:  params.Orders,
		ledger:  ledger,
		stock:   params.Stock,
		coupons: params.Coupons,
		carts:   params.Carts,
		gateway: params.Gateway,
		outbox:  params.Outbox,
		logg:    logg,
		now:     clock,
	}, nil
}

// ConfirmPayment marks the order paid, commits its stock, redeems its coupon
// and clears the cart it came from. A payment for an order that can no longer
// be fulfilled (stock exhausted or order cancelled) is refunded in full.
func (r *Reconciler) ConfirmPayment(ctx context.Context, event Event, pc PaymentConfirmation) (Outcome, error) {
	if event.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	ctx = r.eventContext(ctx, event)

	var outcome Outcome
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.orders.WithTx(tx)
		order, err := r.locatePaid(ctx, repo, pc)
		if err != nil {
			return err
		}

		var orderID *uuid.UUID
		if order != nil {
			orderID = &order.ID
		}
		fresh, err := r.ledger.Record(ctx, tx, event, orderID, r.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
		}
		switch {
		case !fresh:
			outcome = OutcomeDuplicate
			return nil
		case order == nil:
			r.warn(ctx, "payment confirmation for unknown order acknowledged")
			outcome = OutcomeIgnored
			return nil
		case order.PaymentIntentID != nil && *order.PaymentIntentID != pc.PaymentIntentID:
			r.warn(r.logg.WithOrderID(ctx, order.ID.String()), "payment intent does not match order; event acknowledged")
			outcome = OutcomeIgnored
			return nil
		case order.IsPaid:
			outcome = OutcomeNoop
			return nil
		}

		paidAt := r.now().UTC()
		marked, err := repo.MarkPaid(ctx, order.ID, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !marked {
			outcome = OutcomeNoop
			return nil
		}
		if pc.AmountCents > 0 && pc.AmountCents != money.ToCents(order.AmountPaid) {
			r.warn(r.logg.WithOrderID(ctx, order.ID.String()), fmt.Sprintf("captured %d cents, order expects %d", pc.AmountCents, money.ToCents(order.AmountPaid)))
		}

		if order.Status == enums.OrderStatusCancelled {
			outcome = OutcomeOversold
			return r.refundUnfulfillable(ctx, tx, order, pc.PaymentIntentID, "order_cancelled")
		}

		deltas := orders.StockDeltas(order.LineItems, orders.OrderedQty)
		commitErr := tx.Transaction(func(sp *gorm.DB) error {
			return r.stock.Commit(ctx, sp, deltas)
		})
		if commitErr != nil {
			if pkgerrors.IsCode(commitErr, pkgerrors.CodeOutOfStock) {
				outcome = OutcomeOversold
				return r.refundUnfulfillable(ctx, tx, order, pc.PaymentIntentID, "insufficient_stock")
			}
			return commitErr
		}
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"stock_committed": true}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark stock committed")
		}

		if order.AppliedCouponCode != nil {
			if err := r.coupons.MarkUsed(ctx, tx, *order.AppliedCouponCode, order.UserID, order.ID); err != nil {
				return err
			}
		}
		if order.FromCart {
			if err := r.carts.Clear(ctx, tx, order.UserID); err != nil {
				return err
			}
		}

		outcome = OutcomeApplied
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          paidEvent(order, pc.PaymentIntentID, paidAt),
		})
	})
	if err != nil {
		return "", err
	}
	r.info(ctx, outcome, "payment confirmation reconciled")
	return outcome, nil
}

func (r *Reconciler) locatePaid(ctx context.Context, repo orders.Repository, pc PaymentConfirmation) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)
	if pc.OrderID != uuid.Nil {
		order, err = repo.FindByID(ctx, pc.OrderID)
	} else if pc.PaymentIntentID != "" {
		order, err = repo.FindByPaymentIntent(ctx, pc.PaymentIntentID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// refundUnfulfillable leaves the order paid without committed stock and asks
// the gateway for a full refund; the refund webhook completes the order.
func (r *Reconciler) refundUnfulfillable(ctx context.Context, tx *gorm.DB, order *models.Order, intentID, reason string) error {
	repo := r.orders.WithTx(tx)
	refundRecord := &models.Refund{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Kind:        enums.RefundKindFull,
		Amount:      &order.AmountPaid,
		Status:      enums.RefundStatusPending,
		InitiatedBy: uuid.Nil,
	}
	if err := repo.CreateRefund(ctx, refundRecord); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	refund, err := r.gateway.CreateRefund(ctx, payments.RefundRequest{
		PaymentIntentID: intentID,
		Metadata: map[string]string{
			payments.MetadataOrderID: order.ID.String(),
			"reason":                 reason,
		},
		IdempotencyKey: "oversold-" + order.ID.String(),
	})
	if err != nil {
		return err
	}
	if err := repo.UpdateRefund(ctx, refundRecord.ID, map[string]any{"gateway_refund_id": refund.ID}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway refund id")
	}
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"status":          enums.OrderStatusRefundInitiated,
		"stock_committed": false,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag oversold order")
	}
	r.warn(r.logg.WithOrderID(ctx, order.ID.String()), "paid order cannot be fulfilled; full refund requested ("+reason+")")
	return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderOversold,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data:          oversoldEvent(order, intentID, refund.ID, reason),
	})
}

// FinalizeRefund settles refunds confirmed by the processor. A charge refunded
// in full completes the order; otherwise every pending unit becomes refunded.
func (r *Reconciler) FinalizeRefund(ctx context.Context, event Event, notice RefundNotice) (Outcome, error) {
	if event.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	ctx = r.eventContext(ctx, event)

	var outcome Outcome
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.orders.WithTx(tx)
		order, err := repo.FindByPaymentIntent(ctx, notice.PaymentIntentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		var orderID *uuid.UUID
		if order != nil {
			orderID = &order.ID
		}
		fresh, err := r.ledger.Record(ctx, tx, event, orderID, r.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
		}
		switch {
		case !fresh:
			outcome = OutcomeDuplicate
			return nil
		case order == nil:
			r.warn(ctx, "refund for unknown payment intent acknowledged")
			outcome = OutcomeIgnored
			return nil
		case order.Status == enums.OrderStatusRefunded:
			outcome = OutcomeNoop
			return nil
		}

		var result *refundResult
		if r.isFullRefund(order, notice) {
			result, err = r.applyFullRefund(ctx, tx, order)
		} else {
			result, err = r.applyPartialRefund(ctx, tx, order)
		}
		if err != nil {
			return err
		}
		if result == nil {
			r.warn(r.logg.WithOrderID(ctx, order.ID.String()), "partial refund event without pending items acknowledged")
			outcome = OutcomeIgnored
			return nil
		}

		if err := repo.MarkLatestRefundSucceeded(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle refund record")
		}
		eventType := enums.EventOrderRefunded
		if result.status == enums.OrderStatusPartiallyRefunded {
			eventType = enums.EventOrderPartiallyRefunded
		}
		outcome = OutcomeApplied
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          refundedEvent(order, result, money.FromCents(notice.AmountRefundedCents)),
		})
	})
	if err != nil {
		return "", err
	}
	r.info(ctx, outcome, "refund reconciled")
	return outcome, nil
}

func (r *Reconciler) isFullRefund(order *models.Order, notice RefundNotice) bool {
	if notice.FullyRefunded {
		return true
	}
	if notice.ChargeAmountCents > 0 {
		return notice.AmountRefundedCents >= notice.ChargeAmountCents
	}
	return notice.AmountRefundedCents >= money.ToCents(order.AmountPaid)
}

type refundResult struct {
	status    enums.OrderStatus
	remaining decimal.Decimal
	restocked int
}

func (r *Reconciler) applyFullRefund(ctx context.Context, tx *gorm.DB, order *models.Order) (*refundResult, error) {
	repo := r.orders.WithTx(tx)
	restocked := 0
	if order.StockCommitted {
		deltas := orders.StockDeltas(order.LineItems, orders.OutstandingQty)
		if err := r.stock.Restore(ctx, tx, deltas); err != nil {
			return nil, err
		}
		for _, d := range deltas {
			restocked += d.Quantity
		}
	}
	if err := repo.RefundAllItems(ctx, order.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund line items")
	}
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"status":          enums.OrderStatusRefunded,
		"is_paid":         false,
		"amount_paid":     decimal.Zero,
		"stock_committed": false,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete refund")
	}
	return &refundResult{status: enums.OrderStatusRefunded, remaining: decimal.Zero, restocked: restocked}, nil
}

// applyPartialRefund returns nil when no item has pending units.
func (r *Reconciler) applyPartialRefund(ctx context.Context, tx *gorm.DB, order *models.Order) (*refundResult, error) {
	if !orders.HasPendingRefund(order.LineItems) {
		return nil, nil
	}
	repo := r.orders.WithTx(tx)
	settled := make([]models.OrderLineItem, len(order.LineItems))
	copy(settled, order.LineItems)

	restock := make([]stock.Delta, 0, len(settled))
	restocked := 0
	for i := range settled {
		item := &settled[i]
		pending := item.PendingRefundQty
		if pending == 0 {
			continue
		}
		ok, err := repo.SettlePendingRefund(ctx, item.ID, pending)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle pending refund")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "pending refund changed concurrently")
		}
		item.RefundedQty += pending
		item.PendingRefundQty = 0
		restock = append(restock, stock.Delta{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: pending})
		restocked += pending
	}
	if order.StockCommitted {
		if err := r.stock.Restore(ctx, tx, restock); err != nil {
			return nil, err
		}
	} else {
		restocked = 0
	}

	result := &refundResult{status: enums.OrderStatusPartiallyRefunded, remaining: orders.RemainingAmount(settled), restocked: restocked}
	updates := map[string]any{"amount_paid": result.remaining}
	if orders.FullyRefunded(settled) {
		result.status = enums.OrderStatusRefunded
		updates["is_paid"] = false
		updates["stock_committed"] = false
	}
	updates["status"] = result.status
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update refunded order")
	}
	return result, nil
}

func (r *Reconciler) eventContext(ctx context.Context, event Event) context.Context {
	return r.logg.WithEvent(ctx, event.ID, event.Type)
}

func (r *Reconciler) warn(ctx context.Context, msg string) {
	r.logg.Warn(ctx, msg)
}

func (r *Reconciler) info(ctx context.Context, outcome Outcome, msg string) {
	r.logg.Info(r.logg.WithField(ctx, "outcome", string(outcome)), msg)
}
