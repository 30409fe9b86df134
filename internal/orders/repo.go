package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders, their line items and
// refund records. Conditional updates report whether a row matched.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error)
	ListAll(ctx context.Context, params pagination.Params, filters ListFilters) (*pagination.Page[models.Order], error)
	FindUnpaidCardBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)

	SetPaymentIntent(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, paidAt time.Time) (bool, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	CancelUnpaid(ctx context.Context, orderID uuid.UUID) (bool, error)

	AddPendingRefund(ctx context.Context, itemID uuid.UUID, qty int) (bool, error)
	SettlePendingRefund(ctx context.Context, itemID uuid.UUID, qty int) (bool, error)
	ReleasePendingRefund(ctx context.Context, itemID uuid.UUID, qty int) (bool, error)
	RefundAllItems(ctx context.Context, orderID uuid.UUID) error

	CreateRefund(ctx context.Context, refund *models.Refund) error
	UpdateRefund(ctx context.Context, refundID uuid.UUID, updates map[string]any) error
	MarkLatestRefundSucceeded(ctx context.Context, orderID uuid.UUID) error
}

// ListFilters narrows admin listings.
type ListFilters struct {
	Status *enums.OrderStatus
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its line items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })
}

// FindByID returns nil, nil when the order does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByPaymentIntent returns nil, nil when no order carries the intent.
func (r *repository) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	return r.findOne(ctx, "payment_intent_id = ?", paymentIntentID)
}

func (r *repository) findOne(ctx context.Context, query string, args ...any) (*models.Order, error) {
	var rows []models.Order
	if err := withItems(r.db.WithContext(ctx)).Where(query, args...).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error) {
	return r.list(ctx, params, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	})
}

func (r *repository) ListAll(ctx context.Context, params pagination.Params, filters ListFilters) (*pagination.Page[models.Order], error) {
	return r.list(ctx, params, func(db *gorm.DB) *gorm.DB {
		if filters.Status != nil {
			db = db.Where("status = ?", *filters.Status)
		}
		return db
	})
}

func (r *repository) list(ctx context.Context, params pagination.Params, scope func(*gorm.DB) *gorm.DB) (*pagination.Page[models.Order], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	var rows []models.Order
	err = scope(withItems(r.db.WithContext(ctx))).
		Scopes(pagination.Keyset(cursor, params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	page := pagination.Build(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}

// FindUnpaidCardBefore lists card orders still unpaid and Processing that
// were created before cutoff, oldest first.
func (r *repository) FindUnpaidCardBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_method = ? AND is_paid = ? AND status = ? AND created_at < ?",
			enums.PaymentMethodCard, false, enums.OrderStatusProcessing, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) SetPaymentIntent(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_intent_id IS NULL", orderID).
		Update("payment_intent_id", paymentIntentID).Error
}

// MarkPaid flips is_paid only when the order was still unpaid.
func (r *repository) MarkPaid(ctx context.Context, orderID uuid.UUID, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND is_paid = ?", orderID, false).
		Updates(map[string]any{"is_paid": true, "paid_at": paidAt})
	return res.RowsAffected > 0, res.Error
}

// TransitionStatus moves the order from -> to, applying updates in the same
// statement. It matches nothing when another writer changed the status first.
func (r *repository) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Updates(updates).Error
}

// CancelUnpaid cancels a Processing order that has not been paid yet.
func (r *repository) CancelUnpaid(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND is_paid = ? AND status = ?", orderID, false, enums.OrderStatusProcessing).
		Update("status", enums.OrderStatusCancelled)
	return res.RowsAffected > 0, res.Error
}

// AddPendingRefund reserves qty units for a refund while
// refunded + pending + qty stays within quantity.
func (r *repository) AddPendingRefund(ctx context.Context, itemID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE order_line_items SET pending_refund_qty = pending_refund_qty + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND refunded_qty + pending_refund_qty + ? <= quantity`,
		qty, itemID, qty,
	)
	return res.RowsAffected > 0, res.Error
}

// SettlePendingRefund moves qty pending units into refunded.
func (r *repository) SettlePendingRefund(ctx context.Context, itemID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE order_line_items SET refunded_qty = refunded_qty + ?, pending_refund_qty = pending_refund_qty - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND pending_refund_qty >= ?`,
		qty, qty, itemID, qty,
	)
	return res.RowsAffected > 0, res.Error
}

// ReleasePendingRefund drops qty pending units without refunding them.
func (r *repository) ReleasePendingRefund(ctx context.Context, itemID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE order_line_items SET pending_refund_qty = pending_refund_qty - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND pending_refund_qty >= ?`,
		qty, itemID, qty,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) RefundAllItems(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE order_line_items SET refunded_qty = quantity, pending_refund_qty = 0, updated_at = CURRENT_TIMESTAMP WHERE order_id = ?`,
		orderID,
	).Error
}

func (r *repository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) UpdateRefund(ctx context.Context, refundID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Refund{}).Where("id = ?", refundID).Updates(updates).Error
}

// MarkLatestRefundSucceeded settles the newest pending refund record, if any.
func (r *repository) MarkLatestRefundSucceeded(ctx context.Context, orderID uuid.UUID) error {
	var latest []models.Refund
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.RefundStatusPending).
		Order("created_at DESC").
		Limit(1).
		Find(&latest).Error
	if err != nil || len(latest) == 0 {
		return err
	}
	return r.UpdateRefund(ctx, latest[0].ID, map[string]any{"status": enums.RefundStatusSucceeded})
}
