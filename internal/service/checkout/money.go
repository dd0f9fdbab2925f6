package checkout

import "github.com/shopspring/decimal"

// ServiceFee computes the surcharge on a subtotal in minor currency units,
// rounded half-up. The rate comes from configuration, not a constant.
func ServiceFee(subtotalCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotalCents).Mul(rate).Round(0).IntPart()
}

// CentsToAmount renders minor units as a major-unit decimal for the gateway,
// e.g. 1050 -> 10.50.
func CentsToAmount(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}
