package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"tillpoint/internal/domain"
	"tillpoint/internal/store"
)

// A settlement that fails after allocation, here because the drawer
// recompute overflows, must leave sales, ledger, balance and shift
// exactly as they were.
func TestApplySettlementFailureLeavesStateUntouched(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	shift, err := s.OpenShift(ctx, domain.Shift{
		CashierID:         "cashier-a",
		StartingCashCents: math.MaxInt64,
	})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}

	sale, err := s.CreateCheckout(ctx, domain.Sale{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Lines:         []domain.SaleLine{{SKU: "SKU-RICE-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("credit checkout failed: %v", err)
	}

	_, err = s.ApplySettlement(ctx, domain.SettlementRequest{
		CustomerID:     "cust-account-store",
		CashierID:      "cashier-a",
		AmountCents:    100,
		Method:         domain.PayCash,
		IdempotencyKey: "settle-overflow-1",
	})
	if err == nil {
		t.Fatal("expected settlement to fail on drawer overflow")
	}

	customer, err := s.GetCustomerByID(ctx, "cust-account-store")
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if customer.BalanceCents != sale.TotalCents {
		t.Fatalf("balance mutated on failed settlement: %d, want %d", customer.BalanceCents, sale.TotalCents)
	}

	got, err := s.GetSaleByID(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if got.AmountSettledCents != 0 || got.Status != domain.SaleStatusPending {
		t.Fatalf("sale mutated on failed settlement: settled=%d status=%q", got.AmountSettledCents, got.Status)
	}

	entries, err := s.ListLedgerEntries(ctx, "cust-account-store", 10)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("ledger entries written on failed settlement: %d", len(entries))
	}
	if _, err := s.FindLedgerByIdempotency(ctx, "settle-overflow-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("idempotency key recorded on failed settlement: %v", err)
	}

	unchanged, err := s.GetShiftByID(ctx, shift.ID)
	if err != nil {
		t.Fatalf("get shift failed: %v", err)
	}
	if unchanged.CashSettlementsCents != 0 || unchanged.ExpectedCashCents != math.MaxInt64 {
		t.Fatalf("shift mutated on failed settlement: settlements=%d expected=%d",
			unchanged.CashSettlementsCents, unchanged.ExpectedCashCents)
	}

	// The same request succeeds once the drawer can absorb it.
	if _, err := s.CloseShift(ctx, shift.ID, math.MaxInt64, time.Now().UTC()); err != nil {
		t.Fatalf("close shift failed: %v", err)
	}
	result, err := s.ApplySettlement(ctx, domain.SettlementRequest{
		CustomerID:     "cust-account-store",
		CashierID:      "cashier-a",
		AmountCents:    100,
		Method:         domain.PayCash,
		IdempotencyKey: "settle-overflow-1",
	})
	if err != nil {
		t.Fatalf("retry after close failed: %v", err)
	}
	if result.Reused {
		t.Fatal("retry must apply fresh, not replay a failed attempt")
	}
	if result.TotalAppliedCents != 100 || result.AffectedShiftID != "" {
		t.Fatalf("retry applied=%d shift=%q, want 100 and no shift", result.TotalAppliedCents, result.AffectedShiftID)
	}
}
