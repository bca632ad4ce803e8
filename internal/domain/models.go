package domain

import "time"

const (
	PayCash   = "cash"
	PayCard   = "card"
	PayMobile = "mobile"
	PayCredit = "credit"
)

const (
	RefundCash        = "cash"
	RefundCard        = "card"
	RefundMobile      = "mobile"
	RefundStoreCredit = "store_credit"
)

const (
	SaleStatusPaid    = "paid"
	SaleStatusPending = "pending"
)

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const (
	ReturnStatusPending  = "pending"
	ReturnStatusApproved = "approved"
	ReturnStatusRejected = "rejected"
	ReturnStatusRefunded = "refunded"
)

const (
	ReturnActionApprove = "approve"
	ReturnActionReject  = "reject"
)

const (
	LedgerTypePayment = "payment"
	LedgerTypeRefund  = "refund"
)

// Overpayment policies for a settlement that exceeds the customer's
// total outstanding credit.
const (
	OverpaymentIgnore = "ignore"
	OverpaymentReject = "reject"
)

type Product struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Active     bool   `json:"active"`
}

type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BalanceCents int64     `json:"balance_cents"`
	CreatedAt    time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name string `json:"name"`
}

type StockLevel struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Qty        int    `json:"qty"`
}

type StockAdjustRequest struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// Shift is a cashier's tracked work session with a cash drawer.
// ExpectedCashCents is derived from the other cash totals and is never
// accepted from a client; every mutation recomputes it server-side.
type Shift struct {
	ID                     string     `json:"id"`
	CashierID              string     `json:"cashier_id"`
	Status                 string     `json:"status"`
	StartingCashCents      int64      `json:"starting_cash_cents"`
	CashSalesCents         int64      `json:"cash_sales_cents"`
	CardSalesCents         int64      `json:"card_sales_cents"`
	MobileSalesCents       int64      `json:"mobile_sales_cents"`
	CreditSalesCents       int64      `json:"credit_sales_cents"`
	TotalSalesCents        int64      `json:"total_sales_cents"`
	CashSettlementsCents   int64      `json:"cash_settlements_cents"`
	CardSettlementsCents   int64      `json:"card_settlements_cents"`
	MobileSettlementsCents int64      `json:"mobile_settlements_cents"`
	CashReturnsCents       int64      `json:"cash_returns_cents"`
	ExpectedCashCents      int64      `json:"expected_cash_cents"`
	ActualCashCents        int64      `json:"actual_cash_cents,omitempty"`
	CashDifferenceCents    int64      `json:"cash_difference_cents,omitempty"`
	OpenedAt               time.Time  `json:"opened_at"`
	ClosedAt               *time.Time `json:"closed_at,omitempty"`
}

type ShiftOpenRequest struct {
	CashierID         string `json:"cashier_id"`
	StartingCashCents int64  `json:"starting_cash_cents"`
}

type ShiftCloseRequest struct {
	ShiftID         string `json:"shift_id"`
	ActualCashCents int64  `json:"actual_cash_cents"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type SaleLine struct {
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Sale struct {
	ID                 string     `json:"id"`
	CustomerID         string     `json:"customer_id,omitempty"`
	CashierID          string     `json:"cashier_id"`
	ShiftID            string     `json:"shift_id,omitempty"`
	IdempotencyKey     string     `json:"-"`
	PaymentMethod      string     `json:"payment_method"`
	SubtotalCents      int64      `json:"subtotal_cents"`
	DiscountCents      int64      `json:"discount_cents"`
	TaxRatePercent     float64    `json:"tax_rate_percent"`
	TaxCents           int64      `json:"tax_cents"`
	TotalCents         int64      `json:"total_cents"`
	AmountSettledCents int64      `json:"amount_settled_cents"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	Lines              []SaleLine `json:"lines"`
}

// Remaining is the unsettled part of a sale's total.
func (s Sale) Remaining() int64 {
	r := s.TotalCents - s.AmountSettledCents
	if r < 0 {
		return 0
	}
	return r
}

type CartItem struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type CheckoutRequest struct {
	CashierID      string     `json:"cashier_id"`
	CustomerID     string     `json:"customer_id,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	PaymentMethod  string     `json:"payment_method"`
	DiscountCents  int64      `json:"discount_cents"`
	TaxRatePercent float64    `json:"tax_rate_percent"`
	Items          []CartItem `json:"items"`
}

type CheckoutResponse struct {
	Sale      Sale `json:"sale"`
	Duplicate bool `json:"duplicate"`
}

// SettlementRequest applies a payment against a customer's outstanding
// credit sales. Amount may be supplied either as cents or as an exact
// decimal string; never as a binary float.
type SettlementRequest struct {
	CustomerID     string `json:"customer_id"`
	CashierID      string `json:"cashier_id"`
	AmountCents    int64  `json:"amount_cents,omitempty"`
	Amount         string `json:"amount,omitempty"`
	Method         string `json:"method"`
	TargetSaleID   string `json:"target_sale_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// RejectOverpayment is set by the service from configuration, not by
	// clients.
	RejectOverpayment bool `json:"-"`
}

type SettlementAllocation struct {
	SaleID                string `json:"sale_id"`
	AllocatedCents        int64  `json:"allocated_cents"`
	NewAmountSettledCents int64  `json:"new_amount_settled_cents"`
	NewStatus             string `json:"new_status"`
}

type SettlementResult struct {
	Allocations          []SettlementAllocation `json:"allocations"`
	TotalAppliedCents    int64                  `json:"total_applied_cents"`
	CustomerBalanceCents int64                  `json:"customer_balance_cents"`
	AffectedShiftID      string                 `json:"affected_shift_id,omitempty"`
	IdempotencyKey       string                 `json:"idempotency_key"`
	Reused               bool                   `json:"reused"`
}

// LedgerEntry is one append-only line of a customer's debtor history.
// A settlement allocated across three sales produces three entries
// sharing the request's idempotency key intent but distinct sale ids.
type LedgerEntry struct {
	ID             string    `json:"id"`
	CustomerID     string    `json:"customer_id"`
	SaleID         string    `json:"sale_id,omitempty"`
	ReturnID       string    `json:"return_id,omitempty"`
	AmountCents    int64     `json:"amount_cents"`
	Type           string    `json:"type"`
	Method         string    `json:"method"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ReturnItem struct {
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Return struct {
	ID                 string       `json:"id"`
	SaleID             string       `json:"sale_id"`
	CustomerID         string       `json:"customer_id,omitempty"`
	Reason             string       `json:"reason,omitempty"`
	Items              []ReturnItem `json:"items"`
	TotalReturnCents   int64        `json:"total_return_cents"`
	RestockingFeeCents int64        `json:"restocking_fee_cents"`
	RefundCents        int64        `json:"refund_cents"`
	Status             string       `json:"status"`
	RefundMethod       string       `json:"refund_method,omitempty"`
	ReviewedBy         string       `json:"reviewed_by,omitempty"`
	ReviewNote         string       `json:"review_note,omitempty"`
	CashImpactCents    int64        `json:"cash_impact_cents"`
	AffectedShiftID    string       `json:"affected_shift_id,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	ReviewedAt         *time.Time   `json:"reviewed_at,omitempty"`
	RefundedAt         *time.Time   `json:"refunded_at,omitempty"`
}

type ReturnCreateRequest struct {
	SaleID string       `json:"sale_id"`
	Reason string       `json:"reason,omitempty"`
	Items  []ReturnItem `json:"items"`
}

type ReturnReviewRequest struct {
	ReturnID   string `json:"return_id"`
	Action     string `json:"action"`
	Reason     string `json:"reason,omitempty"`
	ManagerPIN string `json:"manager_pin"`
}

type ReturnRefundRequest struct {
	ReturnID     string `json:"return_id"`
	RefundMethod string `json:"refund_method"`
	ManagerPIN   string `json:"manager_pin"`
}

type ReturnResponse struct {
	Return Return `json:"return"`
}

type CustomerStatement struct {
	Customer     Customer `json:"customer"`
	PendingSales []Sale   `json:"pending_sales"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsSettlementMethod reports whether method can settle outstanding
// credit. On-credit is deliberately excluded: debt cannot pay debt.
func IsSettlementMethod(method string) bool {
	switch method {
	case PayCash, PayCard, PayMobile:
		return true
	}
	return false
}

func IsPaymentMethod(method string) bool {
	return method == PayCredit || IsSettlementMethod(method)
}

func IsRefundMethod(method string) bool {
	switch method {
	case RefundCash, RefundCard, RefundMobile, RefundStoreCredit:
		return true
	}
	return false
}
