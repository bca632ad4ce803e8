// Package money holds the fixed-point currency helpers. All amounts are
// carried internally as int64 cents; decimal strings only appear at the
// API boundary and in pro-rata math, where float rounding would drift.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseDecimal converts a decimal amount string ("43.74") into cents.
// More than two fractional digits is rejected rather than rounded, so a
// client cannot silently lose precision in transport.
func ParseDecimal(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	return d.Mul(hundred).IntPart(), nil
}

// FormatCents renders cents as a two-decimal string for API responses.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ProRata distributes valueCents proportionally: part/whole * value,
// rounded half-up to whole cents. A zero whole yields zero.
func ProRata(partCents, wholeCents, valueCents int64) int64 {
	if wholeCents == 0 || valueCents == 0 {
		return 0
	}
	part := decimal.NewFromInt(partCents)
	whole := decimal.NewFromInt(wholeCents)
	value := decimal.NewFromInt(valueCents)
	return part.Mul(value).Div(whole).Round(0).IntPart()
}

// Percent applies a percentage rate to a base amount, rounded half-up.
// Used for tax and restocking-fee computation.
func Percent(baseCents int64, ratePercent float64) int64 {
	if baseCents == 0 || ratePercent == 0 {
		return 0
	}
	base := decimal.NewFromInt(baseCents)
	rate := decimal.NewFromFloat(ratePercent)
	return base.Mul(rate).Div(hundred).Round(0).IntPart()
}
