// Package drawer owns the cash drawer arithmetic: the expected-cash
// formula and the refund cash-impact matrix. Everything here is pure;
// the store layers call it after every mutation instead of patching
// stored totals incrementally.
package drawer

import (
	"errors"
	"math"

	"tillpoint/internal/domain"
)

// ErrCalculation means the drawer formula produced a value outside the
// representable range. Callers must not persist such a result.
var ErrCalculation = errors.New("cash calculation out of range")

// ExpectedCash computes a shift's expected drawer cash:
//
//	starting + cashSales + cashSettlements - cashReturns
//
// This is the single source of truth for expected cash. Every write path
// that changes one of the four inputs recomputes through here and
// overwrites the stored value.
func ExpectedCash(startingCents, cashSalesCents, cashSettlementsCents, cashReturnsCents int64) (int64, error) {
	sum, err := addChecked(startingCents, cashSalesCents)
	if err != nil {
		return 0, err
	}
	sum, err = addChecked(sum, cashSettlementsCents)
	if err != nil {
		return 0, err
	}
	return addChecked(sum, -cashReturnsCents)
}

// Recompute overwrites shift.ExpectedCashCents from its components.
func Recompute(shift *domain.Shift) error {
	expected, err := ExpectedCash(shift.StartingCashCents, shift.CashSalesCents, shift.CashSettlementsCents, shift.CashReturnsCents)
	if err != nil {
		return err
	}
	shift.ExpectedCashCents = expected
	return nil
}

// CashImpact maps (original payment method, refund method) to the signed
// effect of a refund on the originating shift's drawer:
//
//	credit sale, any refund      ->  0 (debt is forgiven instead)
//	cash sale, cash refund       -> -refund (drawer pays out)
//	card sale, cash refund       -> +refund (drawer absorbs compensating cash)
//	card/mobile sale, non-cash   ->  0
func CashImpact(originalMethod, refundMethod string, refundCents int64) int64 {
	if originalMethod == domain.PayCredit {
		return 0
	}
	if refundMethod != domain.RefundCash {
		return 0
	}
	if originalMethod == domain.PayCash {
		return -refundCents
	}
	return refundCents
}

// RecordSale adds a completed sale to the shift's per-method totals and
// recomputes expected cash.
func RecordSale(shift *domain.Shift, method string, amountCents int64) error {
	switch method {
	case domain.PayCash:
		shift.CashSalesCents += amountCents
	case domain.PayCard:
		shift.CardSalesCents += amountCents
	case domain.PayMobile:
		shift.MobileSalesCents += amountCents
	case domain.PayCredit:
		shift.CreditSalesCents += amountCents
	default:
		return ErrCalculation
	}
	shift.TotalSalesCents += amountCents
	return Recompute(shift)
}

// RecordSettlement adds an applied settlement to the shift's per-method
// totals. Only cash settlements move the drawer.
func RecordSettlement(shift *domain.Shift, method string, amountCents int64) error {
	switch method {
	case domain.PayCash:
		shift.CashSettlementsCents += amountCents
	case domain.PayCard:
		shift.CardSettlementsCents += amountCents
	case domain.PayMobile:
		shift.MobileSettlementsCents += amountCents
	default:
		return ErrCalculation
	}
	return Recompute(shift)
}

// RecordReturn applies a refund's signed cash impact. The stored
// cash-returns total accumulates the negated impact so the expected-cash
// formula keeps its fixed shape.
func RecordReturn(shift *domain.Shift, cashImpactCents int64) error {
	shift.CashReturnsCents -= cashImpactCents
	return Recompute(shift)
}

func addChecked(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrCalculation
	}
	if sum == math.MinInt64 {
		return 0, ErrCalculation
	}
	return sum, nil
}
