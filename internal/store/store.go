package store

import (
	"context"
	"errors"
	"time"

	"tillpoint/internal/domain"
)

var (
	ErrCustomerNotFound       = errors.New("customer not found")
	ErrSaleNotFound           = errors.New("sale not found")
	ErrShiftNotFound          = errors.New("shift not found")
	ErrShiftAlreadyOpen       = errors.New("cashier already has an open shift")
	ErrShiftAlreadyClosed     = errors.New("shift already closed")
	ErrReturnNotFound         = errors.New("return not found")
	ErrInvalidReturnState     = errors.New("invalid return state transition")
	ErrReturnNotApproved      = errors.New("return is not approved")
	ErrOverReturn             = errors.New("return quantity exceeds quantity sold")
	ErrOverpayment            = errors.New("payment exceeds outstanding credit")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrConcurrentModification = errors.New("concurrent modification, retry exhausted")
)

// Repository is the storage contract for the reconciliation core.
// ApplySettlement, RefundReturn, CreateCheckout, and the shift
// operations are single calls so each backend can execute them as one
// atomic unit: either every sale, ledger, balance, and shift write in
// the operation commits, or none do.
type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)
	GetStockMap(ctx context.Context, skus []string) (map[string]int, error)
	SetStock(ctx context.Context, sku string, qty int) error

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListPendingCreditSales(ctx context.Context, customerID string) ([]domain.Sale, error)

	CreateCheckout(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)

	ApplySettlement(ctx context.Context, req domain.SettlementRequest) (*domain.SettlementResult, error)
	FindLedgerByIdempotency(ctx context.Context, key string) (*domain.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, customerID string, limit int) ([]domain.LedgerEntry, error)

	OpenShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	CloseShift(ctx context.Context, shiftID string, actualCashCents int64, closedAt time.Time) (*domain.Shift, error)
	GetShiftByID(ctx context.Context, id string) (*domain.Shift, error)
	FindOpenShiftFor(ctx context.Context, cashierID string) (*domain.Shift, error)

	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error)
	GetReturnByID(ctx context.Context, id string) (*domain.Return, error)
	ReviewReturn(ctx context.Context, returnID string, status string, reviewer string, note string, at time.Time) (*domain.Return, error)
	RefundReturn(ctx context.Context, returnID string, refundMethod string, at time.Time) (*domain.Return, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
