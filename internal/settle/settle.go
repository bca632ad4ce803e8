// Package settle plans how an incoming payment is split across a
// customer's outstanding credit sales. The planner is pure; the store
// layers run it inside their atomic units against freshly-read sales.
package settle

import (
	"sort"

	"tillpoint/internal/domain"
)

// Allocation is one planned application of payment to a single sale.
type Allocation struct {
	SaleID         string
	AllocatedCents int64
}

// Plan allocates amountCents across candidate sales: the target sale
// first (capped at its remaining balance), then the rest oldest-first,
// tie-broken by sale id so the order stays deterministic when
// timestamps collide. Fully settled sales are skipped. The unapplied
// remainder, if any, is returned alongside the allocations.
func Plan(amountCents int64, targetSaleID string, candidates []domain.Sale) ([]Allocation, int64) {
	if amountCents <= 0 {
		return nil, amountCents
	}

	ordered := make([]domain.Sale, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if targetSaleID != "" {
			if ordered[i].ID == targetSaleID {
				return ordered[j].ID != targetSaleID
			}
			if ordered[j].ID == targetSaleID {
				return false
			}
		}
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	remaining := amountCents
	allocations := make([]Allocation, 0, len(ordered))
	for _, sale := range ordered {
		if remaining == 0 {
			break
		}
		open := sale.Remaining()
		if open == 0 {
			continue
		}
		allocated := remaining
		if allocated > open {
			allocated = open
		}
		allocations = append(allocations, Allocation{SaleID: sale.ID, AllocatedCents: allocated})
		remaining -= allocated
	}
	return allocations, remaining
}
