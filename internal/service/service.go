package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tillpoint/internal/cache"
	"tillpoint/internal/domain"
	"tillpoint/internal/money"
	"tillpoint/internal/refundcalc"
	"tillpoint/internal/store"
	"tillpoint/internal/xid"
)

// Validation sentinels. Each wraps store.ErrInvalidInput so callers can
// match either the specific kind or the generic one.
var (
	ErrInvalidAmount        = fmt.Errorf("%w: amount must be positive", store.ErrInvalidInput)
	ErrInvalidMethod        = fmt.Errorf("%w: unsupported method", store.ErrInvalidInput)
	ErrNoItems              = fmt.Errorf("%w: at least one item is required", store.ErrInvalidInput)
	ErrRefundMethodRequired = fmt.Errorf("%w: refund method is required", store.ErrInvalidInput)
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options carry the reconciliation policy knobs read from configuration.
type Options struct {
	OverpaymentPolicy    string
	RestockingFeePercent float64
	DefaultTaxPercent    float64
	SettlementCacheTTL   time.Duration
}

type Service struct {
	repo                 store.Repository
	settlements          cache.SettlementCache
	logger               *zap.Logger
	rejectOverpayment    bool
	restockingFeePercent float64
	defaultTaxPercent    float64
	settlementCacheTTL   time.Duration
}

func New(repo store.Repository, settlements cache.SettlementCache, logger *zap.Logger, opts Options) *Service {
	if settlements == nil {
		settlements = cache.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SettlementCacheTTL <= 0 {
		opts.SettlementCacheTTL = 24 * time.Hour
	}

	return &Service{
		repo:                 repo,
		settlements:          settlements,
		logger:               logger,
		rejectOverpayment:    opts.OverpaymentPolicy == domain.OverpaymentReject,
		restockingFeePercent: opts.RestockingFeePercent,
		defaultTaxPercent:    opts.DefaultTaxPercent,
		settlementCacheTTL:   opts.SettlementCacheTTL,
	}
}

func (s *Service) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	product.Name = strings.TrimSpace(product.Name)
	if product.SKU == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product_create", "product", created.SKU, fmt.Sprintf("name=%s,price=%d", created.Name, created.PriceCents))
	return created, nil
}

func (s *Service) StockLevels(ctx context.Context, skus []string) ([]domain.StockLevel, error) {
	normalized := make([]string, 0, len(skus))
	for _, sku := range skus {
		sku = strings.ToUpper(strings.TrimSpace(sku))
		if sku != "" {
			normalized = append(normalized, sku)
		}
	}
	if len(normalized) == 0 {
		return nil, store.ErrInvalidInput
	}

	products, err := s.repo.GetProductsBySKUs(ctx, normalized)
	if err != nil {
		return nil, err
	}
	stock, err := s.repo.GetStockMap(ctx, normalized)
	if err != nil {
		return nil, err
	}

	levels := make([]domain.StockLevel, 0, len(normalized))
	for _, sku := range normalized {
		product, ok := products[sku]
		if !ok {
			continue
		}
		levels = append(levels, domain.StockLevel{
			SKU:        product.SKU,
			Name:       product.Name,
			PriceCents: product.PriceCents,
			Qty:        stock[sku],
		})
	}
	return levels, nil
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}

	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if sku == "" || req.Qty < 0 {
		return store.ErrInvalidInput
	}
	if err := s.repo.SetStock(ctx, sku, req.Qty); err != nil {
		return err
	}
	s.logAudit(ctx, "stock_adjust", "product", sku, fmt.Sprintf("qty=%d", req.Qty))
	return nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, store.ErrInvalidInput
	}
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{Name: name})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return created, nil
}

// CustomerStatement summarizes the customer's outstanding position:
// the live balance plus every credit sale still carrying a remainder.
func (s *Service) CustomerStatement(ctx context.Context, customerID string) (*domain.CustomerStatement, error) {
	customer, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.ListPendingCreditSales(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &domain.CustomerStatement{Customer: *customer, PendingSales: pending}, nil
}

func (s *Service) ListLedger(ctx context.Context, customerID string, limit int) ([]domain.LedgerEntry, error) {
	if customerID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListLedgerEntries(ctx, customerID, limit)
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	if req.CashierID == "" {
		return nil, store.ErrInvalidInput
	}
	if len(req.Items) == 0 {
		return nil, ErrNoItems
	}
	if !domain.IsPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidMethod
	}
	if req.PaymentMethod == domain.PayCredit && req.CustomerID == "" {
		return nil, store.ErrInvalidInput
	}
	if req.TaxRatePercent < 0 {
		return nil, store.ErrInvalidInput
	}
	if req.TaxRatePercent == 0 {
		req.TaxRatePercent = s.defaultTaxPercent
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey)
		if err == nil {
			return &domain.CheckoutResponse{Sale: *existing, Duplicate: true}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	lines := make([]domain.SaleLine, 0, len(req.Items))
	for _, item := range req.Items {
		if item.SKU == "" || item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		lines = append(lines, domain.SaleLine{SKU: strings.ToUpper(strings.TrimSpace(item.SKU)), Qty: item.Qty})
	}

	sale := domain.Sale{
		ID:             xid.New("sale"),
		CustomerID:     req.CustomerID,
		CashierID:      req.CashierID,
		IdempotencyKey: req.IdempotencyKey,
		PaymentMethod:  req.PaymentMethod,
		DiscountCents:  req.DiscountCents,
		TaxRatePercent: req.TaxRatePercent,
		CreatedAt:      time.Now().UTC(),
		Lines:          lines,
	}
	created, err := s.repo.CreateCheckout(ctx, sale)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "checkout", "sale", created.ID,
		fmt.Sprintf("method=%s,total=%d,shift=%s", created.PaymentMethod, created.TotalCents, created.ShiftID))
	s.logger.Info("checkout recorded",
		zap.String("sale_id", created.ID),
		zap.String("method", created.PaymentMethod),
		zap.Int64("total_cents", created.TotalCents))

	return &domain.CheckoutResponse{Sale: *created}, nil
}

// Settle applies a payment against the customer's outstanding credit
// sales, oldest first. Safe to retry: a repeated idempotency key returns
// the original allocation with Reused set instead of applying again.
func (s *Service) Settle(ctx context.Context, req domain.SettlementRequest) (*domain.SettlementResult, error) {
	if req.CustomerID == "" {
		return nil, store.ErrInvalidInput
	}
	if !domain.IsSettlementMethod(req.Method) {
		return nil, ErrInvalidMethod
	}
	if req.AmountCents == 0 && req.Amount != "" {
		cents, err := money.ParseDecimal(req.Amount)
		if err != nil {
			return nil, ErrInvalidAmount
		}
		req.AmountCents = cents
	}
	if req.AmountCents < 1 {
		return nil, ErrInvalidAmount
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	req.RejectOverpayment = s.rejectOverpayment

	// A cache hit still reports the current balance, the same answer a
	// store-level replay gives. On a failed lookup the store decides.
	if cached, ok := s.settlements.GetSettlement(ctx, req.IdempotencyKey); ok {
		if customer, err := s.repo.GetCustomerByID(ctx, req.CustomerID); err == nil {
			cached.Reused = true
			cached.CustomerBalanceCents = customer.BalanceCents
			return cached, nil
		}
	}

	result, err := s.repo.ApplySettlement(ctx, req)
	if err != nil {
		return nil, err
	}
	s.settlements.PutSettlement(ctx, req.IdempotencyKey, result, s.settlementCacheTTL)

	if !result.Reused {
		s.logAudit(ctx, "settlement", "customer", req.CustomerID,
			fmt.Sprintf("method=%s,applied=%d,sales=%d", req.Method, result.TotalAppliedCents, len(result.Allocations)))
		s.logger.Info("settlement applied",
			zap.String("customer_id", req.CustomerID),
			zap.String("method", req.Method),
			zap.Int64("applied_cents", result.TotalAppliedCents),
			zap.Int("allocations", len(result.Allocations)),
			zap.String("shift_id", result.AffectedShiftID))
	}
	return result, nil
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (*domain.Shift, error) {
	if req.CashierID == "" || req.StartingCashCents < 0 {
		return nil, store.ErrInvalidInput
	}
	shift, err := s.repo.OpenShift(ctx, domain.Shift{
		CashierID:         req.CashierID,
		StartingCashCents: req.StartingCashCents,
		OpenedAt:          time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift_open", "shift", shift.ID, fmt.Sprintf("cashier=%s,starting=%d", shift.CashierID, shift.StartingCashCents))
	return shift, nil
}

func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (*domain.Shift, error) {
	if req.ShiftID == "" || req.ActualCashCents < 0 {
		return nil, store.ErrInvalidInput
	}
	shift, err := s.repo.CloseShift(ctx, req.ShiftID, req.ActualCashCents, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift_close", "shift", shift.ID,
		fmt.Sprintf("expected=%d,actual=%d,diff=%d", shift.ExpectedCashCents, shift.ActualCashCents, shift.CashDifferenceCents))
	s.logger.Info("shift closed",
		zap.String("shift_id", shift.ID),
		zap.Int64("expected_cents", shift.ExpectedCashCents),
		zap.Int64("actual_cents", shift.ActualCashCents),
		zap.Int64("difference_cents", shift.CashDifferenceCents))
	return shift, nil
}

func (s *Service) ActiveShift(ctx context.Context, cashierID string) (*domain.Shift, error) {
	if cashierID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.FindOpenShiftFor(ctx, cashierID)
}

func (s *Service) GetShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	return s.repo.GetShiftByID(ctx, shiftID)
}

// CreateReturn prices the returned items against the original sale and
// computes the refund breakdown before recording the pending return.
// Sale financials are immutable after checkout, so pricing outside the
// store's atomic unit is safe; the over-return quantity check is not
// and stays inside it.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) (*domain.Return, error) {
	if req.SaleID == "" {
		return nil, store.ErrInvalidInput
	}
	if len(req.Items) == 0 {
		return nil, ErrNoItems
	}

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		return nil, err
	}

	priceBySKU := make(map[string]int64, len(sale.Lines))
	for _, line := range sale.Lines {
		priceBySKU[line.SKU] = line.UnitPriceCents
	}

	items := make([]domain.ReturnItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		sku := strings.ToUpper(strings.TrimSpace(item.SKU))
		if sku == "" {
			// Unlinked line: damaged goods, missing receipt line. The
			// caller supplies the price and no stock tracking applies.
			if item.UnitPriceCents < 1 {
				return nil, store.ErrInvalidInput
			}
			items = append(items, domain.ReturnItem{Qty: item.Qty, UnitPriceCents: item.UnitPriceCents})
			continue
		}
		price, ok := priceBySKU[sku]
		if !ok {
			return nil, store.ErrInvalidInput
		}
		items = append(items, domain.ReturnItem{SKU: sku, Qty: item.Qty, UnitPriceCents: price})
	}

	breakdown, err := refundcalc.Compute(items, sale.SubtotalCents, sale.DiscountCents, sale.TaxRatePercent, s.restockingFeePercent)
	if err != nil {
		if errors.Is(err, refundcalc.ErrNoItems) {
			return nil, ErrNoItems
		}
		return nil, store.ErrInvalidInput
	}

	created, err := s.repo.CreateReturn(ctx, domain.Return{
		SaleID:             sale.ID,
		Reason:             strings.TrimSpace(req.Reason),
		Items:              items,
		TotalReturnCents:   breakdown.TotalReturnCents,
		RestockingFeeCents: breakdown.RestockingFeeCents,
		RefundCents:        breakdown.RefundCents,
		CreatedAt:          time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "return_create", "return", created.ID,
		fmt.Sprintf("sale=%s,refund=%d", created.SaleID, created.RefundCents))
	return created, nil
}

func (s *Service) GetReturn(ctx context.Context, returnID string) (*domain.Return, error) {
	return s.repo.GetReturnByID(ctx, returnID)
}

func (s *Service) ReviewReturn(ctx context.Context, req domain.ReturnReviewRequest) (*domain.Return, error) {
	if req.ReturnID == "" {
		return nil, store.ErrInvalidInput
	}

	var status string
	switch req.Action {
	case domain.ReturnActionApprove:
		status = domain.ReturnStatusApproved
	case domain.ReturnActionReject:
		status = domain.ReturnStatusRejected
	default:
		return nil, store.ErrInvalidInput
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authenticated reviewer required")
	}

	reviewed, err := s.repo.ReviewReturn(ctx, req.ReturnID, status, actor.Username, strings.TrimSpace(req.Reason), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "return_review", "return", reviewed.ID, "status="+reviewed.Status)
	return reviewed, nil
}

func (s *Service) RefundReturn(ctx context.Context, req domain.ReturnRefundRequest) (*domain.Return, error) {
	if req.ReturnID == "" {
		return nil, store.ErrInvalidInput
	}
	if !domain.IsRefundMethod(req.RefundMethod) {
		return nil, ErrRefundMethodRequired
	}

	refunded, err := s.repo.RefundReturn(ctx, req.ReturnID, req.RefundMethod, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "return_refund", "return", refunded.ID,
		fmt.Sprintf("method=%s,refund=%d,cash_impact=%d", refunded.RefundMethod, refunded.RefundCents, refunded.CashImpactCents))
	s.logger.Info("return refunded",
		zap.String("return_id", refunded.ID),
		zap.String("method", refunded.RefundMethod),
		zap.Int64("refund_cents", refunded.RefundCents),
		zap.Int64("cash_impact_cents", refunded.CashImpactCents),
		zap.String("shift_id", refunded.AffectedShiftID))
	return refunded, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != "admin" && actor.Role != "manager") {
		return nil, fmt.Errorf("manager role required")
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
