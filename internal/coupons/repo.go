package coupons

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists coupons and their per-user redemptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, coupon *models.Coupon) error
	List(ctx context.Context) ([]models.Coupon, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	HasRedeemed(ctx context.Context, couponID, userID uuid.UUID) (bool, error)
	InsertRedemption(ctx context.Context, redemption models.CouponRedemption) (bool, error)
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

func (r *repository) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.DB(ctx).Create(coupon).Error
}

func (r *repository) List(ctx context.Context) ([]models.Coupon, error) {
	var rows []models.Coupon
	err := r.DB(ctx).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).Where("id = ?", id).Delete(&models.Coupon{})
	return res.RowsAffected > 0, res.Error
}

// FindByCode returns nil, nil when no coupon carries code.
func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.DB(ctx).Where("code = ?", code).Limit(1).Find(&coupon).Error
	if err != nil {
		return nil, err
	}
	if coupon.ID == uuid.Nil {
		return nil, nil
	}
	return &coupon, nil
}

func (r *repository) HasRedeemed(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.CouponRedemption{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	return count > 0, err
}

// InsertRedemption reports false when the user had already redeemed the coupon.
func (r *repository) InsertRedemption(ctx context.Context, redemption models.CouponRedemption) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&redemption)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
