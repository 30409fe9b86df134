package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// Service manages the per-user cart.
type Service interface {
	Save(ctx context.Context, userID uuid.UUID, input SaveInput) (*models.Cart, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Empty(ctx context.Context, userID uuid.UUID) error
	Snapshot(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*Snapshot, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

// SaveInput replaces the cart contents.
type SaveInput struct {
	Items []ItemInput
}

// ItemInput is a product/variant and count; prices come from the catalog.
type ItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Count     int
}

type service struct {
	repo    Repository
	catalog catalog.Reader
	now     func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, reader catalog.Reader, clock func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if reader == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &service{repo: repo, catalog: reader, now: clock}, nil
}

// Save replaces the user's cart. Each line is repriced from the catalog and
// any previously applied coupon is dropped.
func (s *service) Save(ctx context.Context, userID uuid.UUID, input SaveInput) (*models.Cart, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart must contain at least one item")
	}

	now := s.now()
	cart := &models.Cart{
		ID:        uuid.New(),
		UserID:    userID,
		CartTotal: decimal.Zero,
		Items:     make([]models.CartItem, 0, len(input.Items)),
	}
	for i, in := range input.Items {
		if in.Count < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item count must be at least 1").
				WithDetails(map[string]any{"index": i})
		}
		unit, err := s.catalog.Resolve(ctx, in.ProductID, in.VariantID)
		if err != nil {
			return nil, err
		}
		item := models.CartItem{
			CartID:    cart.ID,
			Position:  i,
			ProductID: unit.Product.ID,
			Price:     catalog.UnitPrice(unit.Product, unit.Variant, now),
			Count:     in.Count,
		}
		if unit.Variant != nil {
			variantID := unit.Variant.ID
			item.VariantID = &variantID
			item.Size = unit.Variant.Size
			item.Color = unit.Variant.Color
		}
		cart.CartTotal = cart.CartTotal.Add(money.LineTotal(item.Price, item.Count))
		cart.Items = append(cart.Items, item)
	}

	if err := s.repo.Replace(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return cart, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return cart, nil
}

func (s *service) Empty(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "empty cart")
	}
	return nil
}

// Snapshot copies the user's cart. tx may be nil.
func (s *service) Snapshot(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*Snapshot, error) {
	cart, err := s.repo.WithTx(tx).FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	return snapshotOf(cart), nil
}

// Clear deletes the live cart inside tx.
func (s *service) Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	if err := s.repo.WithTx(tx).DeleteByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}
