package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists the per-user cart and its items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Replace(ctx context.Context, cart *models.Cart) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	ApplyCoupon(ctx context.Context, cartID uuid.UUID, code string, discount, totalAfter decimal.Decimal) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

// FindByUser returns nil, nil when the user has no cart.
func (r *repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var carts []models.Cart
	err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&carts).Error
	if err != nil {
		return nil, err
	}
	if len(carts) == 0 {
		return nil, nil
	}
	return &carts[0], nil
}

// Replace drops any existing cart of the owner and inserts cart with its items.
func (r *repository) Replace(ctx context.Context, cart *models.Cart) error {
	return r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.WithTx(tx).DeleteByUser(ctx, cart.UserID); err != nil {
			return err
		}
		return tx.Create(cart).Error
	})
}

func (r *repository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	db := r.DB(ctx)
	sub := db.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID)
	if err := db.Where("cart_id IN (?)", sub).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return db.Where("user_id = ?", userID).Delete(&models.Cart{}).Error
}

func (r *repository) ApplyCoupon(ctx context.Context, cartID uuid.UUID, code string, discount, totalAfter decimal.Decimal) error {
	return r.DB(ctx).Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"applied_coupon_code":     code,
			"applied_coupon_discount": discount,
			"total_after_discount":    totalAfter,
		}).Error
}
