package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type intentCanceller interface {
	CancelIntent(ctx context.Context, intentID string) error
}

type stockRestorer interface {
	Restore(ctx context.Context, tx *gorm.DB, deltas []stock.Delta) error
}

// Actor identifies the caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// Service exposes order reads and operator status changes.
type Service interface {
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error)
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	ListAll(ctx context.Context, params pagination.Params, filters ListFilters) (*pagination.Page[models.Order], error)
	UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
}

type ServiceParams struct {
	Repository        Repository
	TransactionRunner db.TxRunner
	Outbox            outbox.Emitter
	Gateway           intentCanceller
	Stock             stockRestorer
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	repo    Repository
	tx      db.TxRunner
	outbox  outbox.Emitter
	gateway intentCanceller
	stock   stockRestorer
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    params.Repository,
		tx:      params.TransactionRunner,
		outbox:  params.Outbox,
		gateway: params.Gateway,
		stock:   params.Stock,
		logg:    params.Logger,
		now:     clock,
	}, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error) {
	if err := validateCursor(params); err != nil {
		return nil, err
	}
	page, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return page, nil
}

func (s *service) ListAll(ctx context.Context, params pagination.Params, filters ListFilters) (*pagination.Page[models.Order], error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if err := validateCursor(params); err != nil {
		return nil, err
	}
	page, err := s.repo.ListAll(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return page, nil
}

func validateCursor(params pagination.Params) error {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return nil
}

// Get returns an order visible to actor. Other users' orders are reported as
// missing.
func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil || (!actor.IsAdmin() && order.UserID != actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// UpdateStatus applies an operator transition. Terminal orders and orders with
// a refund in flight are frozen; a partially refunded order may still ship.
// Refund states are only reachable through the refund flow.
func (s *service) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !status.AdminSettable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("status %q cannot be set directly", status))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if isFrozen(order.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order in status %q cannot change", order.Status))
		}
		if order.Status == enums.OrderStatusPartiallyRefunded && !fulfilmentStatus(status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("partially refunded order cannot move to %q", status))
		}
		if order.Status == status {
			updated = order
			return nil
		}

		updates, err := s.transitionEffects(ctx, tx, order, status)
		if err != nil {
			return err
		}
		ok, err := repo.TransitionStatus(ctx, order.ID, order.Status, status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				FromStatus: order.Status,
				ToStatus:   status,
			},
		}); err != nil {
			return err
		}

		updated, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Info(s.logg.WithField(logCtx, "status", string(status)), "order status updated")
	}
	return updated, nil
}

func isFrozen(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusDelivered, enums.OrderStatusCancelled,
		enums.OrderStatusRefunded, enums.OrderStatusRefundInitiated:
		return true
	}
	return false
}

func fulfilmentStatus(status enums.OrderStatus) bool {
	return status == enums.OrderStatusShipped || status == enums.OrderStatusDelivered
}

// transitionEffects performs the side effects of moving order to status and
// returns extra column updates for the status write.
func (s *service) transitionEffects(ctx context.Context, tx *gorm.DB, order *models.Order, status enums.OrderStatus) (map[string]any, error) {
	card := order.PaymentMethod.SettlesThroughGateway()
	switch status {
	case enums.OrderStatusCancelled:
		if card {
			if order.IsPaid {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders must be refunded, not cancelled")
			}
			if order.PaymentIntentID != nil {
				if err := s.gateway.CancelIntent(ctx, *order.PaymentIntentID); err != nil {
					return nil, err
				}
			}
			return nil, nil
		}
		if !order.StockCommitted {
			return nil, nil
		}
		if err := s.stock.Restore(ctx, tx, StockDeltas(order.LineItems, OutstandingQty)); err != nil {
			return nil, err
		}
		return map[string]any{"stock_committed": false}, nil

	case enums.OrderStatusShipped, enums.OrderStatusDelivered:
		if card && !order.IsPaid {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid")
		}
		if status == enums.OrderStatusDelivered && !card && !order.IsPaid {
			return map[string]any{"is_paid": true, "paid_at": s.now().UTC()}, nil
		}
		return nil, nil
	}
	return nil, nil
}
