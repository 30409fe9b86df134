// Package catalog reads the product and variant records checkout prices from.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Reader is the catalog surface consumed by cart and checkout.
type Reader interface {
	Resolve(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Unit, error)
}

// Unit is a product with the selected variant, if any.
type Unit struct {
	Product models.Product
	Variant *models.Variant
}

// Available returns the sellable quantity of the unit: the variant quantity
// when a variant is selected, otherwise the product stock. The stock ledger
// draws on the same counter.
func (u Unit) Available() int {
	if u.Variant != nil {
		return u.Variant.Quantity
	}
	return u.Product.Stock
}

type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// Resolve loads a product and, when variantID is set, one of its variants.
func (r *Repository) Resolve(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Unit, error) {
	var product models.Product
	if err := r.DB(ctx).First(&product, "id = ?", productID).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	unit := &Unit{Product: product}
	if variantID == nil {
		return unit, nil
	}

	var variant models.Variant
	if err := r.DB(ctx).First(&variant, "id = ? AND product_id = ?", *variantID, productID).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	unit.Variant = &variant
	return unit, nil
}
