// Package refunds lets operators ask the payment processor for money back.
// Nothing here restocks or settles an order; that happens when the
// processor's confirmation is reconciled.
package refunds

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type refundCreator interface {
	CreateRefund(ctx context.Context, req payments.RefundRequest) (*payments.Refund, error)
}

// Result describes an initiated refund.
type Result struct {
	RefundID        uuid.UUID         `json:"refundId"`
	GatewayRefundID string            `json:"gatewayRefundId"`
	Kind            enums.RefundKind  `json:"kind"`
	Amount          *decimal.Decimal  `json:"refundAmount,omitempty"`
	Status          enums.OrderStatus `json:"status"`
}

type Service interface {
	RefundFull(ctx context.Context, adminID, orderID uuid.UUID) (*Result, error)
	RefundPartial(ctx context.Context, adminID, orderID uuid.UUID, items []orders.ItemRequest) (*Result, error)
}

type ServiceParams struct {
	TransactionRunner db.TxRunner
	Orders            orders.Repository
	Gateway           refundCreator
	Outbox            outbox.Emitter
	Logger            *logger.Logger
}

type service struct {
	tx      db.TxRunner
	orders  orders.Repository
	gateway refundCreator
	outbox  outbox.Emitter
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
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
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:      params.TransactionRunner,
		orders:  params.Orders,
		gateway: params.Gateway,
		outbox:  params.Outbox,
		logg:    logg,
	}, nil
}

// reservation is the committed state of a refund awaiting the processor.
type reservation struct {
	order    *models.Order
	record   *models.Refund
	previous enums.OrderStatus
	items    []orders.ItemRequest
}

// RefundFull refunds whatever is left on the charge.
func (s *service) RefundFull(ctx context.Context, adminID, orderID uuid.UUID) (*Result, error) {
	res, err := s.reserve(ctx, adminID, orderID, func(repo orders.Repository, order *models.Order) (*models.Refund, []orders.ItemRequest, error) {
		if order.Status == enums.OrderStatusRefundInitiated || orders.HasPendingRefund(order.LineItems) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "a refund is already pending for this order")
		}
		return &models.Refund{Kind: enums.RefundKindFull}, nil, nil
	})
	if err != nil {
		return nil, err
	}

	refund, err := s.gateway.CreateRefund(ctx, payments.RefundRequest{
		PaymentIntentID: *res.order.PaymentIntentID,
		Metadata:        refundMetadata(orderID, adminID),
		IdempotencyKey:  res.record.ID.String(),
	})
	if err != nil {
		return nil, s.abandon(ctx, res, err)
	}
	s.finalize(ctx, res, adminID, refund.ID)

	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "full refund initiated")
	return &Result{
		RefundID:        res.record.ID,
		GatewayRefundID: refund.ID,
		Kind:            enums.RefundKindFull,
		Status:          enums.OrderStatusRefundInitiated,
	}, nil
}

// RefundPartial reserves the requested units as pending and asks the
// processor for their value at the locked unit prices.
func (s *service) RefundPartial(ctx context.Context, adminID, orderID uuid.UUID, items []orders.ItemRequest) (*Result, error) {
	res, err := s.reserve(ctx, adminID, orderID, func(repo orders.Repository, order *models.Order) (*models.Refund, []orders.ItemRequest, error) {
		if order.Status == enums.OrderStatusRefundInitiated && !orders.HasPendingRefund(order.LineItems) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "a full refund is already pending for this order")
		}
		plan, err := orders.PlanPartialRefund(order.LineItems, items)
		if err != nil {
			return nil, nil, err
		}
		for _, item := range plan.Items {
			ok, err := repo.AddPendingRefund(ctx, item.OrderItemID, item.Quantity)
			if err != nil {
				return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve refund quantity")
			}
			if !ok {
				return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "invalid refund quantity").
					WithDetails(map[string]any{
						"reason":      string(pkgerrors.ReasonInvalidRefundQuantity),
						"orderItemId": item.OrderItemID.String(),
					})
			}
		}
		rawItems, err := json.Marshal(plan.Items)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode refund items")
		}
		amount := plan.Amount
		return &models.Refund{Kind: enums.RefundKindPartial, Amount: &amount, Items: rawItems}, plan.Items, nil
	})
	if err != nil {
		return nil, err
	}

	cents := money.ToCents(*res.record.Amount)
	refund, err := s.gateway.CreateRefund(ctx, payments.RefundRequest{
		PaymentIntentID: *res.order.PaymentIntentID,
		AmountCents:     &cents,
		Metadata:        refundMetadata(orderID, adminID),
		IdempotencyKey:  res.record.ID.String(),
	})
	if err != nil {
		return nil, s.abandon(ctx, res, err)
	}
	s.finalize(ctx, res, adminID, refund.ID)

	amount := *res.record.Amount
	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	s.logg.Info(s.logg.WithField(logCtx, "amount", amount.StringFixed(2)), "partial refund initiated")
	return &Result{
		RefundID:        res.record.ID,
		GatewayRefundID: refund.ID,
		Kind:            enums.RefundKindPartial,
		Amount:          &amount,
		Status:          enums.OrderStatusRefundInitiated,
	}, nil
}

type reserveFunc func(repo orders.Repository, order *models.Order) (*models.Refund, []orders.ItemRequest, error)

// reserve commits the pending refund before the processor is called, so a
// refund the processor accepts always has pending units for the reconciler
// to settle. The record id is the processor idempotency key.
func (s *service) reserve(ctx context.Context, adminID, orderID uuid.UUID, prepare reserveFunc) (*reservation, error) {
	var res *reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := s.loadRefundable(ctx, repo, orderID)
		if err != nil {
			return err
		}
		record, items, err := prepare(repo, order)
		if err != nil {
			return err
		}
		record.ID = uuid.New()
		record.OrderID = order.ID
		record.Status = enums.RefundStatusPending
		record.InitiatedBy = adminID
		if err := repo.CreateRefund(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
		}
		if order.Status != enums.OrderStatusRefundInitiated {
			ok, err := repo.TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusRefundInitiated, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
			}
		}
		res = &reservation{order: order, record: record, previous: order.Status, items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// abandon undoes a reservation after the processor refused the refund. The
// returned error always carries cause.
func (s *service) abandon(ctx context.Context, res *reservation, cause error) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		for _, item := range res.items {
			ok, err := repo.ReleasePendingRefund(ctx, item.OrderItemID, item.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release refund quantity")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "pending refund quantity already settled")
			}
		}
		if err := repo.UpdateRefund(ctx, res.record.ID, map[string]any{"status": enums.RefundStatusFailed}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund failed")
		}

		order, err := repo.FindByID(ctx, res.order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		if order == nil || order.Status != enums.OrderStatusRefundInitiated || orders.HasPendingRefund(order.LineItems) {
			return nil
		}
		if _, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusRefundInitiated, restoreStatus(res.previous, order.LineItems), nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore order status")
		}
		return nil
	})
	if err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, res.order.ID.String()), "refund reservation not released", err)
		return multierr.Append(cause, err)
	}
	return cause
}

// finalize stores the processor refund id and announces the refund. The
// money has already moved, so a failure here is logged rather than returned:
// the reservation is enough for the reconciler to settle the refund.
func (s *service) finalize(ctx context.Context, res *reservation, adminID uuid.UUID, gatewayRefundID string) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.UpdateRefund(ctx, res.record.ID, map[string]any{"gateway_refund_id": gatewayRefundID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway refund id")
		}
		return s.outbox.Emit(ctx, tx, initiatedEvent(res.order, adminID, res.record, gatewayRefundID, refundLines(res.items)))
	})
	if err != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, res.order.ID.String()), map[string]any{
			"refund_id":         res.record.ID.String(),
			"gateway_refund_id": gatewayRefundID,
		})
		s.logg.Error(logCtx, "refund accepted by processor but not recorded", err)
	}
}

// restoreStatus is the status an order returns to when its only pending
// refund is abandoned.
func restoreStatus(previous enums.OrderStatus, items []models.OrderLineItem) enums.OrderStatus {
	if previous != enums.OrderStatusRefundInitiated {
		return previous
	}
	for _, item := range items {
		if item.RefundedQty > 0 {
			return enums.OrderStatusPartiallyRefunded
		}
	}
	return enums.OrderStatusProcessing
}

// loadRefundable returns a paid card order that is not fully refunded.
func (s *service) loadRefundable(ctx context.Context, repo orders.Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !order.IsPaid || order.Status == enums.OrderStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be refunded")
	}
	if !order.PaymentMethod.SettlesThroughGateway() || order.PaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no card payment to refund")
	}
	return order, nil
}

func refundMetadata(orderID, adminID uuid.UUID) map[string]string {
	return map[string]string{
		payments.MetadataOrderID: orderID.String(),
		"initiatedBy":            adminID.String(),
	}
}

func refundLines(items []orders.ItemRequest) []payloads.RefundItem {
	lines := make([]payloads.RefundItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, payloads.RefundItem{OrderItemID: item.OrderItemID, Quantity: item.Quantity})
	}
	return lines
}

func initiatedEvent(order *models.Order, adminID uuid.UUID, record *models.Refund, gatewayRefundID string, lines []payloads.RefundItem) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventOrderRefundInitiated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: adminID, Role: string(enums.UserRoleAdmin)},
		Data: payloads.OrderRefundInitiatedEvent{
			OrderID:         order.ID,
			RefundID:        record.ID,
			Kind:            record.Kind,
			Amount:          record.Amount,
			GatewayRefundID: gatewayRefundID,
			Items:           lines,
		},
	}
}
