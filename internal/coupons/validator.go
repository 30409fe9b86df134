package coupons

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Applied is a coupon that passed validation for a user.
type Applied struct {
	CouponID        uuid.UUID
	Code            string
	DiscountPercent decimal.Decimal
}

// Checker validates coupons at checkout time.
type Checker interface {
	Validate(ctx context.Context, code string, userID uuid.UUID) (*Applied, error)
}

// Redeemer records coupon use once payment is settled.
type Redeemer interface {
	MarkUsed(ctx context.Context, tx *gorm.DB, code string, userID, orderID uuid.UUID) error
}

// Validator checks existence, expiry and single use per user.
type Validator struct {
	repo   Repository
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

type ValidatorParams struct {
	Repository Repository
	Outbox     outbox.Emitter
	Logger     *logger.Logger
	Clock      func() time.Time
}

func NewValidator(params ValidatorParams) (*Validator, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Validator{repo: params.Repository, outbox: params.Outbox, logg: params.Logger, now: clock}, nil
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (v *Validator) Validate(ctx context.Context, code string, userID uuid.UUID) (*Applied, error) {
	coupon, err := v.lookup(ctx, v.repo, code)
	if err != nil {
		return nil, err
	}
	if v.now().After(coupon.Expiry) {
		return nil, pkgerrors.NewWithReason(pkgerrors.CodeValidation, pkgerrors.ReasonCouponExpired, "coupon expired")
	}
	used, err := v.repo.HasRedeemed(ctx, coupon.ID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check coupon redemption")
	}
	if used {
		return nil, pkgerrors.NewWithReason(pkgerrors.CodeConflict, pkgerrors.ReasonCouponAlreadyUsed, "coupon already used")
	}
	return &Applied{CouponID: coupon.ID, Code: coupon.Code, DiscountPercent: coupon.Discount}, nil
}

// MarkUsed adds userID to the coupon's redeemers inside tx. Replays are no-ops.
// A coupon deleted since checkout is logged and skipped so payment still settles.
func (v *Validator) MarkUsed(ctx context.Context, tx *gorm.DB, code string, userID, orderID uuid.UUID) error {
	repo := v.repo.WithTx(tx)
	coupon, err := v.lookup(ctx, repo, code)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			if v.logg != nil {
				v.logg.Warn(v.logg.WithOrderID(ctx, orderID.String()), "applied coupon no longer exists; redemption skipped")
			}
			return nil
		}
		return err
	}

	inserted, err := repo.InsertRedemption(ctx, models.CouponRedemption{
		CouponID: coupon.ID,
		UserID:   userID,
		OrderID:  &orderID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon redemption")
	}
	if !inserted {
		return nil
	}
	return v.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCouponRedeemed,
		AggregateType: enums.AggregateCoupon,
		AggregateID:   coupon.ID,
		Data: payloads.CouponRedeemedEvent{
			CouponID: coupon.ID,
			Code:     coupon.Code,
			UserID:   userID,
			OrderID:  orderID,
		},
	})
}

func (v *Validator) lookup(ctx context.Context, repo Repository, code string) (*models.Coupon, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, pkgerrors.NewWithReason(pkgerrors.CodeNotFound, pkgerrors.ReasonInvalidCoupon, "invalid coupon")
	}
	coupon, err := repo.FindByCode(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if coupon == nil {
		return nil, pkgerrors.NewWithReason(pkgerrors.CodeNotFound, pkgerrors.ReasonInvalidCoupon, "invalid coupon")
	}
	return coupon, nil
}
