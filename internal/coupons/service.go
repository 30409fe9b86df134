package coupons

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

const (
	minCodeLength = 6
	maxCodeLength = 12
)

var maxDiscount = decimal.NewFromInt(100)

// cartStore is the slice of the cart repository the coupon service needs.
type cartStore interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	ApplyCoupon(ctx context.Context, cartID uuid.UUID, code string, discount, totalAfter decimal.Decimal) error
}

// Service exposes coupon administration and quoting.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ApplyToCart(ctx context.Context, userID uuid.UUID, code string) (*CartQuote, error)
	QuoteBuyNow(ctx context.Context, userID uuid.UUID, input BuyNowQuoteInput) (*BuyNowQuote, error)
}

type CreateInput struct {
	Code     string
	Expiry   time.Time
	Discount decimal.Decimal
}

type BuyNowQuoteInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
	Code      string
}

// CartQuote is the discounted cart total returned after applying a coupon.
type CartQuote struct {
	CartTotal          decimal.Decimal `json:"cartTotal"`
	Discount           decimal.Decimal `json:"discount"`
	TotalAfterDiscount decimal.Decimal `json:"totalAfterDiscount"`
}

// BuyNowQuote prices a single-unit purchase with a coupon.
type BuyNowQuote struct {
	Total       decimal.Decimal `json:"total"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"finalAmount"`
}

type ServiceParams struct {
	Repository Repository
	Checker    Checker
	Carts      cartStore
	Catalog    catalog.Reader
	Clock      func() time.Time
}

type service struct {
	repo    Repository
	checker Checker
	carts   cartStore
	catalog catalog.Reader
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if params.Checker == nil {
		return nil, fmt.Errorf("coupon checker required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    params.Repository,
		checker: params.Checker,
		carts:   params.Carts,
		catalog: params.Catalog,
		now:     clock,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Coupon, error) {
	code := NormalizeCode(input.Code)
	if len(code) < minCodeLength || len(code) > maxCodeLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("code must be %d-%d characters", minCodeLength, maxCodeLength))
	}
	if !input.Discount.IsPositive() || input.Discount.GreaterThan(maxDiscount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount must be greater than 0 and at most 100")
	}
	if input.Expiry.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiry is required")
	}

	coupon := &models.Coupon{
		Code:     code,
		Expiry:   input.Expiry.UTC(),
		Discount: input.Discount,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	return coupon, nil
}

func (s *service) List(ctx context.Context) ([]models.Coupon, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	return rows, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete coupon")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	return nil
}

// ApplyToCart validates code for the user and stores the discounted total on
// their cart. The order amount is recomputed at checkout.
func (s *service) ApplyToCart(ctx context.Context, userID uuid.UUID, code string) (*CartQuote, error) {
	applied, err := s.checker.Validate(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}

	total := decimal.Zero
	for _, item := range cart.Items {
		total = total.Add(money.LineTotal(item.Price, item.Count))
	}
	after := money.ApplyPercentDiscount(total, applied.DiscountPercent)
	if err := s.carts.ApplyCoupon(ctx, cart.ID, applied.Code, applied.DiscountPercent, after); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply coupon to cart")
	}
	return &CartQuote{
		CartTotal:          total,
		Discount:           applied.DiscountPercent,
		TotalAfterDiscount: after,
	}, nil
}

func (s *service) QuoteBuyNow(ctx context.Context, userID uuid.UUID, input BuyNowQuoteInput) (*BuyNowQuote, error) {
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	applied, err := s.checker.Validate(ctx, input.Code, userID)
	if err != nil {
		return nil, err
	}
	unit, err := s.catalog.Resolve(ctx, input.ProductID, input.VariantID)
	if err != nil {
		return nil, err
	}
	total := money.LineTotal(catalog.UnitPrice(unit.Product, unit.Variant, s.now()), input.Quantity)
	return &BuyNowQuote{
		Total:       total,
		Discount:    applied.DiscountPercent,
		FinalAmount: money.ApplyPercentDiscount(total, applied.DiscountPercent),
	}, nil
}
