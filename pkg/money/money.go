// Package money converts between decimal amounts and gateway minor units.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToCents returns round(amount*100) in integer minor units.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units back to a two-decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ApplyPercentDiscount returns total minus percent% of total, rounded to
// two decimals half away from zero.
func ApplyPercentDiscount(total, percent decimal.Decimal) decimal.Decimal {
	discount := total.Mul(percent).Div(hundred)
	return total.Sub(discount).Round(2)
}

// LineTotal returns unitPrice*quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
