package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"tillpoint/internal/domain"
	"tillpoint/internal/store"
	"tillpoint/internal/store/memory"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	return New(memory.NewSeeded(), nil, zaptest.NewLogger(t), opts)
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "morgan",
		Role:     "manager",
	})
}

func TestDrawerReconciliationAcrossShift(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	shift, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{
		CashierID:         "cashier-a",
		StartingCashCents: 10000,
	})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	if shift.ExpectedCashCents != 10000 {
		t.Fatalf("expected cash 10000 at open, got %d", shift.ExpectedCashCents)
	}

	cashSale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		PaymentMethod: domain.PayCash,
		Items:         []domain.CartItem{{SKU: "SKU-RICE-01", Qty: 4}},
	})
	if err != nil {
		t.Fatalf("cash checkout failed: %v", err)
	}
	if cashSale.Sale.TotalCents != 5000 {
		t.Fatalf("expected cash sale total 5000, got %d", cashSale.Sale.TotalCents)
	}

	_, err = svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-RICE-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("credit checkout failed: %v", err)
	}

	mid, err := svc.GetShift(ctx, shift.ID)
	if err != nil {
		t.Fatalf("get shift failed: %v", err)
	}
	if mid.ExpectedCashCents != 15000 {
		t.Fatalf("expected cash 15000 after cash sale, got %d", mid.ExpectedCashCents)
	}
	if mid.CreditSalesCents != 2500 {
		t.Fatalf("expected credit sales 2500, got %d", mid.CreditSalesCents)
	}

	settlement, err := svc.Settle(ctx, domain.SettlementRequest{
		CustomerID:  "cust-account-store",
		CashierID:   "cashier-a",
		AmountCents: 2000,
		Method:      domain.PayCash,
	})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if settlement.AffectedShiftID != shift.ID {
		t.Fatalf("expected settlement to hit shift %s, got %q", shift.ID, settlement.AffectedShiftID)
	}
	if settlement.CustomerBalanceCents != 500 {
		t.Fatalf("expected remaining balance 500, got %d", settlement.CustomerBalanceCents)
	}

	mid, err = svc.GetShift(ctx, shift.ID)
	if err != nil {
		t.Fatalf("get shift failed: %v", err)
	}
	if mid.ExpectedCashCents != 17000 {
		t.Fatalf("expected cash 17000 after cash settlement, got %d", mid.ExpectedCashCents)
	}

	ret, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: cashSale.Sale.ID,
		Reason: "damaged bag",
		Items:  []domain.ReturnItem{{SKU: "SKU-RICE-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}
	if ret.RefundCents != 1250 {
		t.Fatalf("expected refund 1250, got %d", ret.RefundCents)
	}

	if _, err := svc.ReviewReturn(ctx, domain.ReturnReviewRequest{
		ReturnID: ret.ID,
		Action:   domain.ReturnActionApprove,
	}); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	refunded, err := svc.RefundReturn(ctx, domain.ReturnRefundRequest{
		ReturnID:     ret.ID,
		RefundMethod: domain.RefundCash,
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refunded.CashImpactCents != -1250 {
		t.Fatalf("expected cash impact -1250, got %d", refunded.CashImpactCents)
	}
	if refunded.AffectedShiftID != shift.ID {
		t.Fatalf("expected refund to hit shift %s, got %q", shift.ID, refunded.AffectedShiftID)
	}

	closed, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{
		ShiftID:         shift.ID,
		ActualCashCents: 15700,
	})
	if err != nil {
		t.Fatalf("close shift failed: %v", err)
	}
	if closed.ExpectedCashCents != 15750 {
		t.Fatalf("expected cash 15750 at close, got %d", closed.ExpectedCashCents)
	}
	if closed.CashDifferenceCents != -50 {
		t.Fatalf("expected difference -50, got %d", closed.CashDifferenceCents)
	}
}

func TestSettlementAllocatesOldestFirst(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	older, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-OIL-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("first credit checkout failed: %v", err)
	}
	newer, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-SOAP-01", Qty: 4}},
	})
	if err != nil {
		t.Fatalf("second credit checkout failed: %v", err)
	}

	result, err := svc.Settle(ctx, domain.SettlementRequest{
		CustomerID:     "cust-account-store",
		AmountCents:    2000,
		Method:         domain.PayCard,
		IdempotencyKey: "settle-fifo-1",
	})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if len(result.Allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(result.Allocations))
	}
	if result.Allocations[0].SaleID != older.Sale.ID || result.Allocations[0].AllocatedCents != 1798 {
		t.Fatalf("expected oldest sale paid in full first, got %+v", result.Allocations[0])
	}
	if result.Allocations[0].NewStatus != domain.SaleStatusPaid {
		t.Fatalf("expected oldest sale paid, got %s", result.Allocations[0].NewStatus)
	}
	if result.Allocations[1].SaleID != newer.Sale.ID || result.Allocations[1].AllocatedCents != 202 {
		t.Fatalf("expected 202 spillover onto newer sale, got %+v", result.Allocations[1])
	}
	if result.CustomerBalanceCents != 794 {
		t.Fatalf("expected balance 794, got %d", result.CustomerBalanceCents)
	}

	replay, err := svc.Settle(ctx, domain.SettlementRequest{
		CustomerID:     "cust-account-store",
		AmountCents:    2000,
		Method:         domain.PayCard,
		IdempotencyKey: "settle-fifo-1",
	})
	if err != nil {
		t.Fatalf("replayed settlement failed: %v", err)
	}
	if !replay.Reused {
		t.Fatalf("expected replay to be flagged reused")
	}
	if replay.TotalAppliedCents != 2000 {
		t.Fatalf("expected replay to report 2000 applied, got %d", replay.TotalAppliedCents)
	}
	if replay.CustomerBalanceCents != 794 {
		t.Fatalf("expected balance unchanged at 794 after replay, got %d", replay.CustomerBalanceCents)
	}
}

func TestSettlementTargetSaleFirst(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-OIL-01", Qty: 2}},
	}); err != nil {
		t.Fatalf("first credit checkout failed: %v", err)
	}
	target, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-SOAP-01", Qty: 4}},
	})
	if err != nil {
		t.Fatalf("second credit checkout failed: %v", err)
	}

	result, err := svc.Settle(ctx, domain.SettlementRequest{
		CustomerID:   "cust-account-store",
		AmountCents:  500,
		Method:       domain.PayCash,
		TargetSaleID: target.Sale.ID,
	})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if len(result.Allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(result.Allocations))
	}
	if result.Allocations[0].SaleID != target.Sale.ID || result.Allocations[0].AllocatedCents != 500 {
		t.Fatalf("expected 500 on the target sale, got %+v", result.Allocations[0])
	}
}

func TestOverpaymentPolicies(t *testing.T) {
	ctx := managerCtx()

	ignore := newTestService(t, Options{})
	if _, err := ignore.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-walkin-regular",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-BREAD-01", Qty: 1}},
	}); err != nil {
		t.Fatalf("credit checkout failed: %v", err)
	}
	result, err := ignore.Settle(ctx, domain.SettlementRequest{
		CustomerID:  "cust-walkin-regular",
		AmountCents: 1000,
		Method:      domain.PayCash,
	})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if result.TotalAppliedCents != 369 {
		t.Fatalf("expected only 369 applied, got %d", result.TotalAppliedCents)
	}
	if result.CustomerBalanceCents != 0 {
		t.Fatalf("expected balance cleared, got %d", result.CustomerBalanceCents)
	}

	reject := newTestService(t, Options{OverpaymentPolicy: domain.OverpaymentReject})
	if _, err := reject.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-walkin-regular",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-BREAD-01", Qty: 1}},
	}); err != nil {
		t.Fatalf("credit checkout failed: %v", err)
	}
	_, err = reject.Settle(ctx, domain.SettlementRequest{
		CustomerID:  "cust-walkin-regular",
		AmountCents: 1000,
		Method:      domain.PayCash,
	})
	if !errors.Is(err, store.ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}
}

func TestCheckoutIdempotencyReturnsDuplicate(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	first, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:      "cashier-a",
		IdempotencyKey: "chk-dup-1",
		PaymentMethod:  domain.PayCash,
		Items:          []domain.CartItem{{SKU: "SKU-MILK-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if first.Duplicate {
		t.Fatalf("first checkout flagged duplicate")
	}

	second, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:      "cashier-a",
		IdempotencyKey: "chk-dup-1",
		PaymentMethod:  domain.PayCash,
		Items:          []domain.CartItem{{SKU: "SKU-MILK-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("replayed checkout failed: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected duplicate flag on replay")
	}
	if second.Sale.ID != first.Sale.ID {
		t.Fatalf("expected same sale id on replay, got %s and %s", first.Sale.ID, second.Sale.ID)
	}
}

func TestReturnLifecycleWithoutShift(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-b",
		PaymentMethod: domain.PayCard,
		Items:         []domain.CartItem{{SKU: "SKU-COFFEE-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("card checkout failed: %v", err)
	}

	ret, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.ReturnItem{{SKU: "SKU-COFFEE-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}

	_, err = svc.RefundReturn(ctx, domain.ReturnRefundRequest{
		ReturnID:     ret.ID,
		RefundMethod: domain.RefundCash,
	})
	if !errors.Is(err, store.ErrReturnNotApproved) {
		t.Fatalf("expected ErrReturnNotApproved before review, got %v", err)
	}

	approved, err := svc.ReviewReturn(ctx, domain.ReturnReviewRequest{
		ReturnID: ret.ID,
		Action:   domain.ReturnActionApprove,
	})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.ReviewedBy != "morgan" {
		t.Fatalf("expected reviewer morgan, got %q", approved.ReviewedBy)
	}

	_, err = svc.ReviewReturn(ctx, domain.ReturnReviewRequest{
		ReturnID: ret.ID,
		Action:   domain.ReturnActionReject,
	})
	if !errors.Is(err, store.ErrInvalidReturnState) {
		t.Fatalf("expected ErrInvalidReturnState on second review, got %v", err)
	}

	refunded, err := svc.RefundReturn(ctx, domain.ReturnRefundRequest{
		ReturnID:     ret.ID,
		RefundMethod: domain.RefundCash,
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refunded.Status != domain.ReturnStatusRefunded {
		t.Fatalf("expected refunded status, got %s", refunded.Status)
	}
	if refunded.AffectedShiftID != "" {
		t.Fatalf("expected no affected shift, got %q", refunded.AffectedShiftID)
	}
}

func TestCreditReturnForgivesBalance(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-RICE-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("credit checkout failed: %v", err)
	}

	ret, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.ReturnItem{{SKU: "SKU-RICE-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}
	if _, err := svc.ReviewReturn(ctx, domain.ReturnReviewRequest{
		ReturnID: ret.ID,
		Action:   domain.ReturnActionApprove,
	}); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	refunded, err := svc.RefundReturn(ctx, domain.ReturnRefundRequest{
		ReturnID:     ret.ID,
		RefundMethod: domain.RefundStoreCredit,
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refunded.CashImpactCents != 0 {
		t.Fatalf("expected zero cash impact on credit forgiveness, got %d", refunded.CashImpactCents)
	}

	statement, err := svc.CustomerStatement(ctx, "cust-account-store")
	if err != nil {
		t.Fatalf("statement failed: %v", err)
	}
	if statement.Customer.BalanceCents != 1250 {
		t.Fatalf("expected balance 1250 after forgiveness, got %d", statement.Customer.BalanceCents)
	}

	ledger, err := svc.ListLedger(ctx, "cust-account-store", 10)
	if err != nil {
		t.Fatalf("ledger failed: %v", err)
	}
	if len(ledger) != 1 || ledger[0].Type != domain.LedgerTypeRefund {
		t.Fatalf("expected one refund ledger entry, got %+v", ledger)
	}
}

func TestOverReturnRejected(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		PaymentMethod: domain.PayCash,
		Items:         []domain.CartItem{{SKU: "SKU-MILK-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.ReturnItem{{SKU: "SKU-MILK-01", Qty: 3}},
	})
	if !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected ErrOverReturn, got %v", err)
	}

	if _, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.ReturnItem{{SKU: "SKU-MILK-01", Qty: 2}},
	}); err != nil {
		t.Fatalf("full-quantity return should pass: %v", err)
	}

	_, err = svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.ReturnItem{{SKU: "SKU-MILK-01", Qty: 1}},
	})
	if !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected ErrOverReturn across cumulative returns, got %v", err)
	}
}

func TestRestockingFeeReducesRefund(t *testing.T) {
	svc := newTestService(t, Options{RestockingFeePercent: 10})
	ctx := managerCtx()

	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		PaymentMethod: domain.PayCash,
		Items:         []domain.CartItem{{SKU: "SKU-RICE-01", Qty: 4}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	ret, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.ReturnItem{{SKU: "SKU-RICE-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}
	if ret.TotalReturnCents != 2500 {
		t.Fatalf("expected total return 2500, got %d", ret.TotalReturnCents)
	}
	if ret.RestockingFeeCents != 250 {
		t.Fatalf("expected fee 250, got %d", ret.RestockingFeeCents)
	}
	if ret.RefundCents != 2250 {
		t.Fatalf("expected refund 2250, got %d", ret.RefundCents)
	}
}

func TestSettlementWithoutOpenShift(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-OIL-01", Qty: 1}},
	}); err != nil {
		t.Fatalf("credit checkout failed: %v", err)
	}

	result, err := svc.Settle(ctx, domain.SettlementRequest{
		CustomerID:  "cust-account-store",
		CashierID:   "cashier-a",
		AmountCents: 500,
		Method:      domain.PayCash,
	})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if result.AffectedShiftID != "" {
		t.Fatalf("expected no affected shift, got %q", result.AffectedShiftID)
	}
}

func TestSettleAcceptsDecimalAmount(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-OIL-01", Qty: 2}},
	}); err != nil {
		t.Fatalf("credit checkout failed: %v", err)
	}

	result, err := svc.Settle(ctx, domain.SettlementRequest{
		CustomerID: "cust-account-store",
		Amount:     "12.34",
		Method:     domain.PayCash,
	})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if result.TotalAppliedCents != 1234 {
		t.Fatalf("expected 1234 applied, got %d", result.TotalAppliedCents)
	}

	_, err = svc.Settle(ctx, domain.SettlementRequest{
		CustomerID: "cust-account-store",
		Amount:     "12.345",
		Method:     domain.PayCash,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for sub-cent amount, got %v", err)
	}
}

func TestValidationErrorKinds(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	if _, err := svc.Settle(ctx, domain.SettlementRequest{
		CustomerID:  "cust-account-store",
		AmountCents: 100,
		Method:      "barter",
	}); !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
	if _, err := svc.Settle(ctx, domain.SettlementRequest{
		CustomerID: "cust-account-store",
		Method:     domain.PayCash,
	}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero amount, got %v", err)
	}

	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		PaymentMethod: domain.PayCash,
	}); !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems for empty cart, got %v", err)
	}
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		PaymentMethod: "iou",
		Items:         []domain.CartItem{{SKU: "SKU-RICE-01", Qty: 1}},
	}); !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod for checkout, got %v", err)
	}

	sale, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		PaymentMethod: domain.PayCard,
		Items:         []domain.CartItem{{SKU: "SKU-RICE-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: sale.Sale.ID,
	}); !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems for empty return, got %v", err)
	}

	ret, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: sale.Sale.ID,
		Items:  []domain.ReturnItem{{SKU: "SKU-RICE-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}
	if _, err := svc.ReviewReturn(ctx, domain.ReturnReviewRequest{
		ReturnID: ret.ID,
		Action:   domain.ReturnActionApprove,
	}); err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if _, err := svc.RefundReturn(ctx, domain.ReturnRefundRequest{
		ReturnID: ret.ID,
	}); !errors.Is(err, ErrRefundMethodRequired) {
		t.Fatalf("expected ErrRefundMethodRequired, got %v", err)
	}

	// Each kind still matches the generic one.
	if !errors.Is(ErrInvalidAmount, store.ErrInvalidInput) ||
		!errors.Is(ErrInvalidMethod, store.ErrInvalidInput) ||
		!errors.Is(ErrNoItems, store.ErrInvalidInput) ||
		!errors.Is(ErrRefundMethodRequired, store.ErrInvalidInput) {
		t.Fatal("validation kinds must wrap the generic invalid-input error")
	}
}

func TestCloseShiftTwiceRejected(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := managerCtx()

	shift, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{
		CashierID:         "cashier-a",
		StartingCashCents: 5000,
	})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	if _, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{
		CashierID:         "cashier-a",
		StartingCashCents: 5000,
	}); !errors.Is(err, store.ErrShiftAlreadyOpen) {
		t.Fatalf("expected ErrShiftAlreadyOpen, got %v", err)
	}

	if _, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{
		ShiftID:         shift.ID,
		ActualCashCents: 5000,
	}); err != nil {
		t.Fatalf("close shift failed: %v", err)
	}

	_, err = svc.CloseShift(ctx, domain.ShiftCloseRequest{
		ShiftID:         shift.ID,
		ActualCashCents: 5000,
	})
	if !errors.Is(err, store.ErrShiftAlreadyClosed) {
		t.Fatalf("expected ErrShiftAlreadyClosed, got %v", err)
	}
}

// mapCache is an in-process SettlementCache for tests.
type mapCache struct {
	hits    int
	entries map[string]*domain.SettlementResult
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*domain.SettlementResult)}
}

func (c *mapCache) GetSettlement(_ context.Context, key string) (*domain.SettlementResult, bool) {
	stored, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.hits++
	clone := *stored
	return &clone, true
}

func (c *mapCache) PutSettlement(_ context.Context, key string, result *domain.SettlementResult, _ time.Duration) {
	clone := *result
	c.entries[key] = &clone
}

func (c *mapCache) Close() error { return nil }

func TestCachedReplayReportsCurrentBalance(t *testing.T) {
	settlements := newMapCache()
	svc := New(memory.NewSeeded(), settlements, zaptest.NewLogger(t), Options{})
	ctx := managerCtx()

	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-OIL-01", Qty: 2}},
	}); err != nil {
		t.Fatalf("credit checkout failed: %v", err)
	}

	first, err := svc.Settle(ctx, domain.SettlementRequest{
		CustomerID:     "cust-account-store",
		CashierID:      "cashier-a",
		AmountCents:    1000,
		Method:         domain.PayCash,
		IdempotencyKey: "settle-cache-1",
	})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if first.CustomerBalanceCents != 798 {
		t.Fatalf("balance after settlement = %d, want 798", first.CustomerBalanceCents)
	}

	// A later credit sale moves the balance; the replay must report the
	// moved balance, not the one captured at application time.
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{
		CashierID:     "cashier-a",
		CustomerID:    "cust-account-store",
		PaymentMethod: domain.PayCredit,
		Items:         []domain.CartItem{{SKU: "SKU-BREAD-01", Qty: 1}},
	}); err != nil {
		t.Fatalf("second credit checkout failed: %v", err)
	}

	replay, err := svc.Settle(ctx, domain.SettlementRequest{
		CustomerID:     "cust-account-store",
		CashierID:      "cashier-a",
		AmountCents:    1000,
		Method:         domain.PayCash,
		IdempotencyKey: "settle-cache-1",
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !replay.Reused {
		t.Fatal("expected replay to be marked reused")
	}
	if settlements.hits != 1 {
		t.Fatalf("cache hits = %d, want 1", settlements.hits)
	}
	if replay.TotalAppliedCents != 1000 {
		t.Fatalf("replay applied = %d, want 1000", replay.TotalAppliedCents)
	}
	if replay.CustomerBalanceCents != 1167 {
		t.Fatalf("replay balance = %d, want 1167", replay.CustomerBalanceCents)
	}
}
