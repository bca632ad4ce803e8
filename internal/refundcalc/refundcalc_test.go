package refundcalc

import (
	"errors"
	"testing"

	"tillpoint/internal/domain"
)

// A 45.00 return on a sale with subtotal 200.00 and discount 20.00 at
// 8% tax: proportional discount 4.50, discounted subtotal 40.50, tax
// 3.24, total 43.74, refund 43.74 with no restocking fee.
func TestComputeProRataDiscountAndTax(t *testing.T) {
	items := []domain.ReturnItem{{SKU: "SKU-1", Qty: 3, UnitPriceCents: 1500}}

	b, err := Compute(items, 20000, 2000, 8, 0)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if b.ReturnedSubtotalCents != 4500 {
		t.Fatalf("returned subtotal = %d, want 4500", b.ReturnedSubtotalCents)
	}
	if b.ProportionalDiscountCents != 450 {
		t.Fatalf("proportional discount = %d, want 450", b.ProportionalDiscountCents)
	}
	if b.DiscountedSubtotalCents != 4050 {
		t.Fatalf("discounted subtotal = %d, want 4050", b.DiscountedSubtotalCents)
	}
	if b.TaxCents != 324 {
		t.Fatalf("tax = %d, want 324", b.TaxCents)
	}
	if b.TotalReturnCents != 4374 {
		t.Fatalf("total return = %d, want 4374", b.TotalReturnCents)
	}
	if b.RefundCents != 4374 {
		t.Fatalf("refund = %d, want 4374", b.RefundCents)
	}
}

func TestComputeRestockingFee(t *testing.T) {
	items := []domain.ReturnItem{{SKU: "SKU-1", Qty: 1, UnitPriceCents: 10000}}

	b, err := Compute(items, 10000, 0, 0, 10)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if b.TotalReturnCents != 10000 {
		t.Fatalf("total return = %d, want 10000", b.TotalReturnCents)
	}
	if b.RestockingFeeCents != 1000 {
		t.Fatalf("restocking fee = %d, want 1000", b.RestockingFeeCents)
	}
	if b.RefundCents != 9000 {
		t.Fatalf("refund = %d, want 9000", b.RefundCents)
	}
}

func TestComputeUndiscountedSale(t *testing.T) {
	items := []domain.ReturnItem{
		{SKU: "SKU-1", Qty: 2, UnitPriceCents: 1200},
		{SKU: "SKU-2", Qty: 1, UnitPriceCents: 600},
	}

	b, err := Compute(items, 6000, 0, 8, 0)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if b.ReturnedSubtotalCents != 3000 {
		t.Fatalf("returned subtotal = %d, want 3000", b.ReturnedSubtotalCents)
	}
	if b.ProportionalDiscountCents != 0 {
		t.Fatalf("proportional discount = %d, want 0", b.ProportionalDiscountCents)
	}
	if b.TaxCents != 240 {
		t.Fatalf("tax = %d, want 240", b.TaxCents)
	}
	if b.RefundCents != 3240 {
		t.Fatalf("refund = %d, want 3240", b.RefundCents)
	}
}

func TestComputeRejectsEmptyItems(t *testing.T) {
	if _, err := Compute(nil, 10000, 0, 8, 0); !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
}
