package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"tillpoint/internal/domain"
	"tillpoint/internal/drawer"
	"tillpoint/internal/money"
	"tillpoint/internal/settle"
	"tillpoint/internal/store"
	"tillpoint/internal/xid"
)

// Store is an in-memory Repository for dev and tests. A single mutex
// guards every operation, which makes each Repository call trivially
// atomic: the lock is held for the whole read-plan-write cycle.
type Store struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	stock         map[string]int
	customersByID map[string]domain.Customer
	salesByID     map[string]*domain.Sale
	salesByIdem   map[string]*domain.Sale
	ledger        []domain.LedgerEntry
	ledgerByIdem  map[string][]int
	shiftsByID    map[string]domain.Shift
	openShiftBy   map[string]string
	returnsByID   map[string]domain.Return
	auditLogs     []domain.AuditLog
}

func New() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		stock:         make(map[string]int),
		customersByID: make(map[string]domain.Customer),
		salesByID:     make(map[string]*domain.Sale),
		salesByIdem:   make(map[string]*domain.Sale),
		ledger:        make([]domain.LedgerEntry, 0, 128),
		ledgerByIdem:  make(map[string][]int),
		shiftsByID:    make(map[string]domain.Shift),
		openShiftBy:   make(map[string]string),
		returnsByID:   make(map[string]domain.Return),
		auditLogs:     make([]domain.AuditLog, 0, 128),
	}
}

// NewSeeded returns a store preloaded with a small catalog and two
// customers, enough to exercise every core flow without a database.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{SKU: "SKU-RICE-01", Name: "Rice 5kg", PriceCents: 1250, Active: true},
		{SKU: "SKU-OIL-01", Name: "Cooking Oil 1L", PriceCents: 899, Active: true},
		{SKU: "SKU-SOAP-01", Name: "Bath Soap", PriceCents: 249, Active: true},
		{SKU: "SKU-COFFEE-01", Name: "Ground Coffee 250g", PriceCents: 1575, Active: true},
		{SKU: "SKU-BREAD-01", Name: "Sandwich Bread", PriceCents: 369, Active: true},
		{SKU: "SKU-MILK-01", Name: "Milk 1L", PriceCents: 425, Active: true},
	}
	for _, p := range products {
		s.products[p.SKU] = p
		s.stock[p.SKU] = 100
	}

	for _, c := range []domain.Customer{
		{ID: "cust-walkin-regular", Name: "Dana Whitfield", CreatedAt: now},
		{ID: "cust-account-store", Name: "Riverside Catering", CreatedAt: now},
	} {
		s.customersByID[c.ID] = c
	}

	return s
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.SKU]; exists {
		return nil, store.ErrInvalidInput
	}
	product.Active = true
	s.products[product.SKU] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if p, ok := s.products[sku]; ok && p.Active {
			result[sku] = p
		}
	}
	return result, nil
}

func (s *Store) GetStockMap(_ context.Context, skus []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stockMap := make(map[string]int, len(skus))
	for _, sku := range skus {
		stockMap[sku] = s.stock[sku]
	}
	return stockMap, nil
}

func (s *Store) SetStock(_ context.Context, sku string, qty int) error {
	if sku == "" || qty < 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[sku]; !exists {
		return store.ErrNotFound
	}
	s.stock[sku] = qty
	return nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.customersByID[customer.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrCustomerNotFound
	}
	found := customer
	return &found, nil
}

func (s *Store) ListPendingCreditSales(_ context.Context, customerID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingCreditSalesLocked(customerID), nil
}

// pendingCreditSalesLocked returns copies sorted oldest first, id as
// tie-break. Callers hold at least a read lock.
func (s *Store) pendingCreditSalesLocked(customerID string) []domain.Sale {
	sales := make([]domain.Sale, 0, 8)
	for _, sale := range s.salesByID {
		if sale.CustomerID != customerID {
			continue
		}
		if sale.PaymentMethod != domain.PayCredit || sale.Status != domain.SaleStatusPending {
			continue
		}
		sales = append(sales, cloneSale(*sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.Before(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sales
}

func (s *Store) CreateCheckout(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.IdempotencyKey != "" {
		if _, exists := s.salesByIdem[sale.IdempotencyKey]; exists {
			return nil, store.ErrInvalidInput
		}
	}

	if sale.PaymentMethod == domain.PayCredit {
		if sale.CustomerID == "" {
			return nil, store.ErrInvalidInput
		}
	}
	if sale.CustomerID != "" {
		if _, exists := s.customersByID[sale.CustomerID]; !exists {
			return nil, store.ErrCustomerNotFound
		}
	}

	// Reprice and check stock against current state, never trusting
	// client-supplied amounts.
	subtotal := int64(0)
	priced := make([]domain.SaleLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		product, exists := s.products[line.SKU]
		if !exists || !product.Active {
			return nil, store.ErrInvalidInput
		}
		if s.stock[line.SKU] < line.Qty {
			return nil, store.ErrInsufficientStock
		}
		priced = append(priced, domain.SaleLine{SKU: line.SKU, Qty: line.Qty, UnitPriceCents: product.PriceCents})
		subtotal += int64(line.Qty) * product.PriceCents
	}
	if sale.DiscountCents < 0 || sale.DiscountCents > subtotal {
		return nil, store.ErrInvalidInput
	}

	sale.Lines = priced
	sale.SubtotalCents = subtotal
	taxBase := subtotal - sale.DiscountCents
	sale.TaxCents = taxCents(taxBase, sale.TaxRatePercent)
	sale.TotalCents = taxBase + sale.TaxCents

	if sale.PaymentMethod == domain.PayCredit {
		sale.AmountSettledCents = 0
		sale.Status = domain.SaleStatusPending
	} else {
		sale.AmountSettledCents = sale.TotalCents
		sale.Status = domain.SaleStatusPaid
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	// A sale with no open shift still completes, it just carries no
	// shift reference.
	sale.ShiftID = ""
	if shiftID, ok := s.openShiftBy[sale.CashierID]; ok {
		shift := s.shiftsByID[shiftID]
		if err := drawer.RecordSale(&shift, sale.PaymentMethod, sale.TotalCents); err != nil {
			return nil, err
		}
		s.shiftsByID[shiftID] = shift
		sale.ShiftID = shiftID
	}

	for _, line := range sale.Lines {
		s.stock[line.SKU] -= line.Qty
	}
	if sale.PaymentMethod == domain.PayCredit {
		customer := s.customersByID[sale.CustomerID]
		customer.BalanceCents += sale.TotalCents
		s.customersByID[sale.CustomerID] = customer
	}

	stored := cloneSale(sale)
	s.salesByID[sale.ID] = &stored
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = &stored
	}
	created := cloneSale(stored)
	return &created, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByIdem[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneSale(*sale)
	return &found, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrSaleNotFound
	}
	found := cloneSale(*sale)
	return &found, nil
}

func (s *Store) ApplySettlement(_ context.Context, req domain.SettlementRequest) (*domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[req.CustomerID]
	if !exists {
		return nil, store.ErrCustomerNotFound
	}

	// At-most-once: a recorded idempotency key short-circuits into a
	// replay built from the ledger, with no reapplication.
	if req.IdempotencyKey != "" {
		if indexes, ok := s.ledgerByIdem[req.IdempotencyKey]; ok {
			return s.replaySettlementLocked(req.IdempotencyKey, indexes), nil
		}
	}

	candidates := s.pendingCreditSalesLocked(req.CustomerID)
	if req.TargetSaleID != "" {
		target, exists := s.salesByID[req.TargetSaleID]
		if !exists || target.CustomerID != req.CustomerID {
			return nil, store.ErrSaleNotFound
		}
		if !containsSale(candidates, req.TargetSaleID) {
			candidates = append(candidates, cloneSale(*target))
		}
	}

	plan, remainder := settle.Plan(req.AmountCents, req.TargetSaleID, candidates)
	if remainder > 0 && req.RejectOverpayment {
		return nil, store.ErrOverpayment
	}

	// Stage every write on copies first. Nothing is installed until the
	// whole settlement, drawer recompute included, has succeeded, so a
	// failure mid-way leaves sales, ledger, balance and shift untouched.
	now := time.Now().UTC()
	result := &domain.SettlementResult{
		Allocations:    make([]domain.SettlementAllocation, 0, len(plan)),
		IdempotencyKey: req.IdempotencyKey,
	}
	stagedSales := make([]domain.Sale, 0, len(plan))
	stagedEntries := make([]domain.LedgerEntry, 0, len(plan))
	for _, allocation := range plan {
		sale := cloneSale(*s.salesByID[allocation.SaleID])
		sale.AmountSettledCents += allocation.AllocatedCents
		if sale.AmountSettledCents >= sale.TotalCents {
			sale.Status = domain.SaleStatusPaid
		}
		stagedSales = append(stagedSales, sale)

		stagedEntries = append(stagedEntries, domain.LedgerEntry{
			ID:             xid.New("ledger"),
			CustomerID:     req.CustomerID,
			SaleID:         sale.ID,
			AmountCents:    allocation.AllocatedCents,
			Type:           domain.LedgerTypePayment,
			Method:         req.Method,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      now,
		})

		result.Allocations = append(result.Allocations, domain.SettlementAllocation{
			SaleID:                sale.ID,
			AllocatedCents:        allocation.AllocatedCents,
			NewAmountSettledCents: sale.AmountSettledCents,
			NewStatus:             sale.Status,
		})
		result.TotalAppliedCents += allocation.AllocatedCents
	}

	var affectedShiftID string
	var updatedShift domain.Shift
	if result.TotalAppliedCents > 0 {
		if shiftID, ok := s.openShiftBy[req.CashierID]; ok {
			updatedShift = s.shiftsByID[shiftID]
			if err := drawer.RecordSettlement(&updatedShift, req.Method, result.TotalAppliedCents); err != nil {
				return nil, err
			}
			affectedShiftID = shiftID
		}
	}

	// Commit point: no step below can fail.
	for _, sale := range stagedSales {
		*s.salesByID[sale.ID] = sale
	}
	for _, entry := range stagedEntries {
		s.appendLedgerLocked(entry)
	}
	customer.BalanceCents -= result.TotalAppliedCents
	s.customersByID[req.CustomerID] = customer
	result.CustomerBalanceCents = customer.BalanceCents
	if affectedShiftID != "" {
		s.shiftsByID[affectedShiftID] = updatedShift
		result.AffectedShiftID = affectedShiftID
	}

	return result, nil
}

func (s *Store) replaySettlementLocked(key string, indexes []int) *domain.SettlementResult {
	result := &domain.SettlementResult{
		Allocations:    make([]domain.SettlementAllocation, 0, len(indexes)),
		IdempotencyKey: key,
		Reused:         true,
	}
	for _, idx := range indexes {
		entry := s.ledger[idx]
		allocation := domain.SettlementAllocation{
			SaleID:         entry.SaleID,
			AllocatedCents: entry.AmountCents,
		}
		if sale, ok := s.salesByID[entry.SaleID]; ok {
			allocation.NewAmountSettledCents = sale.AmountSettledCents
			allocation.NewStatus = sale.Status
		}
		result.Allocations = append(result.Allocations, allocation)
		result.TotalAppliedCents += entry.AmountCents
	}
	if len(indexes) > 0 {
		if customer, ok := s.customersByID[s.ledger[indexes[0]].CustomerID]; ok {
			result.CustomerBalanceCents = customer.BalanceCents
		}
	}
	return result
}

func (s *Store) appendLedgerLocked(entry domain.LedgerEntry) {
	s.ledger = append(s.ledger, entry)
	if entry.IdempotencyKey != "" {
		s.ledgerByIdem[entry.IdempotencyKey] = append(s.ledgerByIdem[entry.IdempotencyKey], len(s.ledger)-1)
	}
}

func (s *Store) FindLedgerByIdempotency(_ context.Context, key string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indexes, ok := s.ledgerByIdem[key]
	if !ok || len(indexes) == 0 {
		return nil, store.ErrNotFound
	}
	entry := s.ledger[indexes[0]]
	return &entry, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, customerID string, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	entries := make([]domain.LedgerEntry, 0, limit)
	for i := len(s.ledger) - 1; i >= 0 && len(entries) < limit; i-- {
		if s.ledger[i].CustomerID == customerID {
			entries = append(entries, s.ledger[i])
		}
	}
	return entries, nil
}

func (s *Store) OpenShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.CashierID == "" || shift.StartingCashCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.openShiftBy[shift.CashierID]; open {
		return nil, store.ErrShiftAlreadyOpen
	}

	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	if err := drawer.Recompute(&shift); err != nil {
		return nil, err
	}

	s.shiftsByID[shift.ID] = shift
	s.openShiftBy[shift.CashierID] = shift.ID
	opened := shift
	return &opened, nil
}

func (s *Store) CloseShift(_ context.Context, shiftID string, actualCashCents int64, closedAt time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[shiftID]
	if !exists {
		return nil, store.ErrShiftNotFound
	}
	if shift.Status == domain.ShiftStatusClosed {
		return nil, store.ErrShiftAlreadyClosed
	}

	shift.Status = domain.ShiftStatusClosed
	shift.ActualCashCents = actualCashCents
	shift.CashDifferenceCents = actualCashCents - shift.ExpectedCashCents
	at := closedAt.UTC()
	shift.ClosedAt = &at

	s.shiftsByID[shiftID] = shift
	delete(s.openShiftBy, shift.CashierID)
	closed := shift
	return &closed, nil
}

func (s *Store) GetShiftByID(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, exists := s.shiftsByID[id]
	if !exists {
		return nil, store.ErrShiftNotFound
	}
	found := shift
	return &found, nil
}

func (s *Store) FindOpenShiftFor(_ context.Context, cashierID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, ok := s.openShiftBy[cashierID]
	if !ok {
		return nil, store.ErrShiftNotFound
	}
	shift := s.shiftsByID[shiftID]
	return &shift, nil
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.SaleID == "" || len(ret.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[ret.SaleID]
	if !exists {
		return nil, store.ErrSaleNotFound
	}

	if err := s.checkOverReturnLocked(*sale, ret.Items); err != nil {
		return nil, err
	}

	ret.CustomerID = sale.CustomerID
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	ret.Status = domain.ReturnStatusPending

	s.returnsByID[ret.ID] = ret
	created := cloneReturn(ret)
	return &created, nil
}

// checkOverReturnLocked enforces that line-linked returned quantities,
// summed across all non-rejected returns for the sale, never exceed the
// quantity originally sold. Items without a SKU have no linkage and are
// left to manual review.
func (s *Store) checkOverReturnLocked(sale domain.Sale, items []domain.ReturnItem) error {
	soldBySKU := make(map[string]int, len(sale.Lines))
	for _, line := range sale.Lines {
		soldBySKU[line.SKU] += line.Qty
	}

	returnedBySKU := make(map[string]int)
	for _, existing := range s.returnsByID {
		if existing.SaleID != sale.ID || existing.Status == domain.ReturnStatusRejected {
			continue
		}
		for _, item := range existing.Items {
			if item.SKU != "" {
				returnedBySKU[item.SKU] += item.Qty
			}
		}
	}

	for _, item := range items {
		if item.SKU == "" {
			continue
		}
		sold, ok := soldBySKU[item.SKU]
		if !ok {
			return store.ErrInvalidInput
		}
		if returnedBySKU[item.SKU]+item.Qty > sold {
			return store.ErrOverReturn
		}
		returnedBySKU[item.SKU] += item.Qty
	}
	return nil
}

func (s *Store) GetReturnByID(_ context.Context, id string) (*domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, exists := s.returnsByID[id]
	if !exists {
		return nil, store.ErrReturnNotFound
	}
	found := cloneReturn(ret)
	return &found, nil
}

func (s *Store) ReviewReturn(_ context.Context, returnID string, status string, reviewer string, note string, at time.Time) (*domain.Return, error) {
	if status != domain.ReturnStatusApproved && status != domain.ReturnStatusRejected {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ret, exists := s.returnsByID[returnID]
	if !exists {
		return nil, store.ErrReturnNotFound
	}
	if ret.Status != domain.ReturnStatusPending {
		return nil, store.ErrInvalidReturnState
	}

	ret.Status = status
	ret.ReviewedBy = reviewer
	ret.ReviewNote = note
	reviewedAt := at.UTC()
	ret.ReviewedAt = &reviewedAt

	s.returnsByID[returnID] = ret
	reviewed := cloneReturn(ret)
	return &reviewed, nil
}

func (s *Store) RefundReturn(_ context.Context, returnID string, refundMethod string, at time.Time) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret, exists := s.returnsByID[returnID]
	if !exists {
		return nil, store.ErrReturnNotFound
	}
	if ret.Status != domain.ReturnStatusApproved {
		return nil, store.ErrReturnNotApproved
	}

	sale, exists := s.salesByID[ret.SaleID]
	if !exists {
		return nil, store.ErrSaleNotFound
	}

	cashImpact := drawer.CashImpact(sale.PaymentMethod, refundMethod, ret.RefundCents)

	// The cash impact lands on the shift that processed the original
	// sale. A closed shift is immutable for ledger purposes, so the
	// refund then carries no shift reference.
	affectedShiftID := ""
	if cashImpact != 0 && sale.ShiftID != "" {
		if shift, ok := s.shiftsByID[sale.ShiftID]; ok && shift.Status == domain.ShiftStatusOpen {
			if err := drawer.RecordReturn(&shift, cashImpact); err != nil {
				return nil, err
			}
			s.shiftsByID[sale.ShiftID] = shift
			affectedShiftID = shift.ID
		}
	}

	if sale.PaymentMethod == domain.PayCredit && sale.CustomerID != "" {
		customer := s.customersByID[sale.CustomerID]
		forgiven := ret.RefundCents
		if forgiven > customer.BalanceCents {
			forgiven = customer.BalanceCents
		}
		customer.BalanceCents -= forgiven
		s.customersByID[sale.CustomerID] = customer

		s.appendLedgerLocked(domain.LedgerEntry{
			ID:          xid.New("ledger"),
			CustomerID:  sale.CustomerID,
			SaleID:      sale.ID,
			ReturnID:    ret.ID,
			AmountCents: forgiven,
			Type:        domain.LedgerTypeRefund,
			Method:      refundMethod,
			CreatedAt:   at.UTC(),
		})
	}

	for _, item := range ret.Items {
		if item.SKU == "" {
			continue
		}
		if _, ok := s.products[item.SKU]; ok {
			s.stock[item.SKU] += item.Qty
		}
	}

	ret.Status = domain.ReturnStatusRefunded
	ret.RefundMethod = refundMethod
	ret.CashImpactCents = cashImpact
	ret.AffectedShiftID = affectedShiftID
	refundedAt := at.UTC()
	ret.RefundedAt = &refundedAt

	s.returnsByID[returnID] = ret
	refunded := cloneReturn(ret)
	return &refunded, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func taxCents(taxBaseCents int64, ratePercent float64) int64 {
	if taxBaseCents <= 0 || ratePercent <= 0 {
		return 0
	}
	return money.Percent(taxBaseCents, ratePercent)
}

func containsSale(sales []domain.Sale, id string) bool {
	for _, sale := range sales {
		if sale.ID == id {
			return true
		}
	}
	return false
}

func cloneSale(sale domain.Sale) domain.Sale {
	lines := make([]domain.SaleLine, len(sale.Lines))
	copy(lines, sale.Lines)
	sale.Lines = lines
	return sale
}

func cloneReturn(ret domain.Return) domain.Return {
	items := make([]domain.ReturnItem, len(ret.Items))
	copy(items, ret.Items)
	ret.Items = items
	return ret
}
