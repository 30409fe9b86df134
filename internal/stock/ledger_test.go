package stock

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func seed(t *testing.T, conn *gorm.DB, stock, variantQty int) (models.Product, models.Variant) {
	t.Helper()
	product := models.Product{Title: "Tee", BasePrice: decimal.NewFromInt(20), Stock: stock}
	require.NoError(t, conn.Create(&product).Error)
	variant := models.Variant{ProductID: product.ID, Size: "M", Color: "black", Price: decimal.NewFromInt(22), Quantity: variantQty}
	require.NoError(t, conn.Create(&variant).Error)
	return product, variant
}

func reload(t *testing.T, conn *gorm.DB, product *models.Product, variant *models.Variant) {
	t.Helper()
	require.NoError(t, conn.First(product, "id = ?", product.ID).Error)
	require.NoError(t, conn.First(variant, "id = ?", variant.ID).Error)
}

func TestCommitMovesStockToSold(t *testing.T) {
	conn := dbtest.Open(t)
	product, variant := seed(t, conn, 10, 4)
	ledger := NewLedger()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Commit(context.Background(), tx, []Delta{
			{ProductID: product.ID, VariantID: &variant.ID, Quantity: 3},
			{ProductID: product.ID, Quantity: 2},
		})
	})
	require.NoError(t, err)

	reload(t, conn, &product, &variant)
	require.Equal(t, 8, product.Stock, "variant lines draw on the variant only")
	require.Equal(t, 5, product.Sold)
	require.Equal(t, 1, variant.Quantity)
	require.Equal(t, 3, variant.Sold)
}

func TestCommitVariantOfProductWithoutOwnStock(t *testing.T) {
	conn := dbtest.Open(t)
	product, variant := seed(t, conn, 0, 5)
	ledger := NewLedger()
	ctx := context.Background()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Commit(ctx, tx, []Delta{{ProductID: product.ID, VariantID: &variant.ID, Quantity: 2}})
	}))
	reload(t, conn, &product, &variant)
	require.Equal(t, 0, product.Stock)
	require.Equal(t, 2, product.Sold)
	require.Equal(t, 3, variant.Quantity)
	require.Equal(t, 2, variant.Sold)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Commit(ctx, tx, []Delta{{ProductID: product.ID, Quantity: 1}})
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock), "product lines still need product stock")
}

func TestCommitShortfallRollsBackBatch(t *testing.T) {
	conn := dbtest.Open(t)
	product, variant := seed(t, conn, 10, 2)
	other, _ := seed(t, conn, 5, 5)
	ledger := NewLedger()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Commit(context.Background(), tx, []Delta{
			{ProductID: other.ID, Quantity: 1},
			{ProductID: product.ID, VariantID: &variant.ID, Quantity: 2},
			{ProductID: product.ID, VariantID: &variant.ID, Quantity: 1},
		})
	})
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))

	reload(t, conn, &product, &variant)
	require.Equal(t, 10, product.Stock)
	require.Equal(t, 2, variant.Quantity)
	require.NoError(t, conn.First(&other, "id = ?", other.ID).Error)
	require.Equal(t, 5, other.Stock)
}

func TestRestoreReturnsUnits(t *testing.T) {
	conn := dbtest.Open(t)
	product, variant := seed(t, conn, 10, 4)
	ledger := NewLedger()
	ctx := context.Background()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Commit(ctx, tx, []Delta{{ProductID: product.ID, VariantID: &variant.ID, Quantity: 4}})
	}))
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Restore(ctx, tx, []Delta{{ProductID: product.ID, VariantID: &variant.ID, Quantity: 2}})
	}))

	reload(t, conn, &product, &variant)
	require.Equal(t, 10, product.Stock)
	require.Equal(t, 2, product.Sold)
	require.Equal(t, 2, variant.Quantity)
	require.Equal(t, 2, variant.Sold)
}

func TestRestoreUnknownUnit(t *testing.T) {
	conn := dbtest.Open(t)
	err := NewLedger().Restore(context.Background(), conn, []Delta{{ProductID: uuid.New(), Quantity: 1}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMergeValidatesAndOrders(t *testing.T) {
	_, err := merge([]Delta{{ProductID: uuid.New(), Quantity: 0}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	p := uuid.New()
	v := uuid.New()
	units, err := merge([]Delta{
		{ProductID: p, VariantID: &v, Quantity: 1},
		{ProductID: p, VariantID: &v, Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.Equal(t, mergedUnit{key: unitKey{table: tableProducts, id: p}, stock: 0, sold: 3}, units[0])
	require.Equal(t, mergedUnit{key: unitKey{table: tableVariants, id: v}, stock: 3, sold: 3}, units[1])

	units, err = merge([]Delta{{ProductID: p, VariantID: &v, Quantity: 1}, {ProductID: p, Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, mergedUnit{key: unitKey{table: tableProducts, id: p}, stock: 2, sold: 3}, units[0])
}
