// Package repo holds the connection plumbing shared by gorm repositories.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by repositories; it remembers whether it is bound to a
// transaction so WithTx chains stay cheap.
type Base struct {
	db   *gorm.DB
	inTx bool
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// Bind returns a copy of b that runs on tx. A nil tx keeps the current handle.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx, inTx: true}
}

// InTx reports whether b was bound with Bind.
func (b Base) InTx() bool {
	return b.inTx
}

// DB is the handle scoped to ctx; nil ctx returns the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Conn prefers an explicit tx over the bound handle.
func (b Base) Conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	return b.Bind(tx).DB(ctx)
}
