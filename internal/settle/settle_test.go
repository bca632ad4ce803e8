package settle

import (
	"testing"
	"time"

	"tillpoint/internal/domain"
)

func pendingSale(id string, totalCents, settledCents int64, createdAt time.Time) domain.Sale {
	return domain.Sale{
		ID:                 id,
		PaymentMethod:      domain.PayCredit,
		TotalCents:         totalCents,
		AmountSettledCents: settledCents,
		Status:             domain.SaleStatusPending,
		CreatedAt:          createdAt,
	}
}

func TestPlanFIFO(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	sales := []domain.Sale{
		pendingSale("sale-b", 7000, 0, base.Add(time.Hour)),
		pendingSale("sale-a", 3000, 0, base),
	}

	allocations, remainder := Plan(5000, "", sales)
	if remainder != 0 {
		t.Fatalf("remainder = %d, want 0", remainder)
	}
	if len(allocations) != 2 {
		t.Fatalf("got %d allocations, want 2", len(allocations))
	}
	if allocations[0].SaleID != "sale-a" || allocations[0].AllocatedCents != 3000 {
		t.Fatalf("first allocation = %+v, want sale-a/3000", allocations[0])
	}
	if allocations[1].SaleID != "sale-b" || allocations[1].AllocatedCents != 2000 {
		t.Fatalf("second allocation = %+v, want sale-b/2000", allocations[1])
	}
}

func TestPlanCoversOnlyOldestWhenAmountIsSmall(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	sales := []domain.Sale{
		pendingSale("t1", 3000, 0, base),
		pendingSale("t2", 4000, 0, base.Add(time.Minute)),
		pendingSale("t3", 5000, 0, base.Add(2*time.Minute)),
	}

	allocations, remainder := Plan(3000, "", sales)
	if remainder != 0 {
		t.Fatalf("remainder = %d, want 0", remainder)
	}
	if len(allocations) != 1 || allocations[0].SaleID != "t1" {
		t.Fatalf("allocations = %+v, want only t1", allocations)
	}
}

func TestPlanTargetSaleFirst(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	sales := []domain.Sale{
		pendingSale("old", 3000, 0, base),
		pendingSale("target", 4000, 0, base.Add(time.Hour)),
	}

	allocations, _ := Plan(3500, "target", sales)
	if len(allocations) != 1 {
		t.Fatalf("got %d allocations, want 1", len(allocations))
	}
	if allocations[0].SaleID != "target" || allocations[0].AllocatedCents != 3500 {
		t.Fatalf("allocation = %+v, want target/3500", allocations[0])
	}
}

func TestPlanTargetSpilloverGoesOldestFirst(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	sales := []domain.Sale{
		pendingSale("old", 3000, 0, base),
		pendingSale("newer", 3000, 0, base.Add(2*time.Hour)),
		pendingSale("target", 1000, 0, base.Add(time.Hour)),
	}

	allocations, remainder := Plan(2500, "target", sales)
	if remainder != 0 {
		t.Fatalf("remainder = %d, want 0", remainder)
	}
	if len(allocations) != 2 {
		t.Fatalf("got %d allocations, want 2", len(allocations))
	}
	if allocations[0].SaleID != "target" || allocations[0].AllocatedCents != 1000 {
		t.Fatalf("first allocation = %+v", allocations[0])
	}
	if allocations[1].SaleID != "old" || allocations[1].AllocatedCents != 1500 {
		t.Fatalf("spillover allocation = %+v, want old/1500", allocations[1])
	}
}

func TestPlanTieBreaksOnSaleID(t *testing.T) {
	at := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	sales := []domain.Sale{
		pendingSale("sale-z", 1000, 0, at),
		pendingSale("sale-a", 1000, 0, at),
	}

	allocations, _ := Plan(500, "", sales)
	if len(allocations) != 1 || allocations[0].SaleID != "sale-a" {
		t.Fatalf("allocations = %+v, want sale-a first", allocations)
	}
}

func TestPlanReportsOverpaymentRemainder(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	sales := []domain.Sale{pendingSale("only", 1000, 400, base)}

	allocations, remainder := Plan(2000, "", sales)
	if len(allocations) != 1 || allocations[0].AllocatedCents != 600 {
		t.Fatalf("allocations = %+v, want only/600", allocations)
	}
	if remainder != 1400 {
		t.Fatalf("remainder = %d, want 1400", remainder)
	}
}

func TestPlanSkipsSettledSales(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	sales := []domain.Sale{
		pendingSale("done", 1000, 1000, base),
		pendingSale("open", 1000, 0, base.Add(time.Minute)),
	}

	allocations, _ := Plan(500, "", sales)
	if len(allocations) != 1 || allocations[0].SaleID != "open" {
		t.Fatalf("allocations = %+v, want only open", allocations)
	}
}
