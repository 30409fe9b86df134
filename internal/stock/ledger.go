// Package stock applies atomic stock and sold-counter deltas to products and
// variants.
package stock

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Delta moves Quantity units of a product, or of one of its variants, between
// stock and sold. A variant line draws on the variant's quantity; the parent
// product only counts the sale.
type Delta struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

const (
	tableProducts = "products"
	tableVariants = "variants"
)

type unitKey struct {
	table string
	id    uuid.UUID
}

// Ledger applies guarded deltas inside the caller's transaction.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Commit moves units from stock to sold. Every row is a single guarded
// statement; a shortfall on any unit fails the batch with OUT_OF_STOCK and the
// caller's transaction must roll back.
func (l *Ledger) Commit(ctx context.Context, tx *gorm.DB, deltas []Delta) error {
	units, err := merge(deltas)
	if err != nil {
		return err
	}
	for _, u := range units {
		var res *gorm.DB
		switch u.key.table {
		case tableProducts:
			res = tx.WithContext(ctx).Exec(
				`UPDATE products SET stock = stock - ?, sold = sold + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND stock >= ?`,
				u.stock, u.sold, u.key.id, u.stock,
			)
		default:
			res = tx.WithContext(ctx).Exec(
				`UPDATE variants SET quantity = quantity - ?, sold = sold + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND quantity >= ?`,
				u.stock, u.sold, u.key.id, u.stock,
			)
		}
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "commit stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").
				WithDetails(map[string]any{"reason": string(pkgerrors.ReasonOutOfStock), "unit_id": u.key.id.String(), "unit": u.key.table})
		}
	}
	return nil
}

// Restore moves units back from sold to stock. Sold never drops below zero.
func (l *Ledger) Restore(ctx context.Context, tx *gorm.DB, deltas []Delta) error {
	units, err := merge(deltas)
	if err != nil {
		return err
	}
	for _, u := range units {
		var res *gorm.DB
		switch u.key.table {
		case tableProducts:
			res = tx.WithContext(ctx).Exec(
				`UPDATE products SET stock = stock + ?, sold = CASE WHEN sold >= ? THEN sold - ? ELSE 0 END, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
				u.stock, u.sold, u.sold, u.key.id,
			)
		default:
			res = tx.WithContext(ctx).Exec(
				`UPDATE variants SET quantity = quantity + ?, sold = CASE WHEN sold >= ? THEN sold - ? ELSE 0 END, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
				u.stock, u.sold, u.sold, u.key.id,
			)
		}
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "stock unit not found").
				WithDetails(map[string]any{"unit_id": u.key.id.String(), "unit": u.key.table})
		}
	}
	return nil
}

// mergedUnit is the net change for one row: stock units drawn and sales counted.
// For a product that only appears as the parent of variant lines, stock is 0.
type mergedUnit struct {
	key   unitKey
	stock int
	sold  int
}

// merge folds deltas per row and orders them by table then id so concurrent
// batches acquire row locks in the same order.
func merge(deltas []Delta) ([]mergedUnit, error) {
	totals := map[unitKey]*mergedUnit{}
	add := func(key unitKey, stock, sold int) {
		u, ok := totals[key]
		if !ok {
			u = &mergedUnit{key: key}
			totals[key] = u
		}
		u.stock += stock
		u.sold += sold
	}
	for _, d := range deltas {
		if d.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock delta quantity must be positive")
		}
		if d.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock delta requires a product")
		}
		if d.VariantID != nil && *d.VariantID != uuid.Nil {
			add(unitKey{table: tableVariants, id: *d.VariantID}, d.Quantity, d.Quantity)
			add(unitKey{table: tableProducts, id: d.ProductID}, 0, d.Quantity)
			continue
		}
		add(unitKey{table: tableProducts, id: d.ProductID}, d.Quantity, d.Quantity)
	}

	units := make([]mergedUnit, 0, len(totals))
	for _, u := range totals {
		units = append(units, *u)
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].key.table != units[j].key.table {
			return units[i].key.table < units[j].key.table
		}
		return units[i].key.id.String() < units[j].key.id.String()
	})
	return units, nil
}
