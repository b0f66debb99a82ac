package shared

import "github.com/shopspring/decimal"

// Monetary amounts are carried as exact decimals and rounded half-up to two
// places at every computation boundary, per line item rather than only at
// aggregate totals.

// Round2 applies the canonical monetary rounding.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FloorZero clamps negative amounts to zero.
func FloorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// IsMoney reports whether d is a non-negative amount with at most two
// decimal places.
func IsMoney(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Exponent() >= -2
}
