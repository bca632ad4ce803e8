// Package refundcalc computes the money side of a partial return: the
// returned subtotal, the pro-rata share of the original sale's discount,
// tax at the rate applied at sale time, and the restocking fee.
package refundcalc

import (
	"errors"

	"tillpoint/internal/domain"
	"tillpoint/internal/money"
)

var ErrNoItems = errors.New("return has no items")

type Breakdown struct {
	ReturnedSubtotalCents     int64
	ProportionalDiscountCents int64
	DiscountedSubtotalCents   int64
	TaxCents                  int64
	TotalReturnCents          int64
	RestockingFeeCents        int64
	RefundCents               int64
}

// Compute derives the refund breakdown for a set of returned items.
// The sale's discount is distributed pro-rata across the returned value
// rather than applied flat, and tax uses the original sale's rate.
func Compute(items []domain.ReturnItem, saleSubtotalCents, saleDiscountCents int64, taxRatePercent, restockingFeePercent float64) (Breakdown, error) {
	if len(items) == 0 {
		return Breakdown{}, ErrNoItems
	}

	var b Breakdown
	for _, item := range items {
		b.ReturnedSubtotalCents += int64(item.Qty) * item.UnitPriceCents
	}

	b.ProportionalDiscountCents = money.ProRata(b.ReturnedSubtotalCents, saleSubtotalCents, saleDiscountCents)
	b.DiscountedSubtotalCents = b.ReturnedSubtotalCents - b.ProportionalDiscountCents
	b.TaxCents = money.Percent(b.DiscountedSubtotalCents, taxRatePercent)
	b.TotalReturnCents = b.DiscountedSubtotalCents + b.TaxCents
	b.RestockingFeeCents = money.Percent(b.TotalReturnCents, restockingFeePercent)
	b.RefundCents = b.TotalReturnCents - b.RestockingFeeCents
	return b, nil
}
