package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tillpoint/internal/domain"
	"tillpoint/internal/drawer"
	"tillpoint/internal/money"
	"tillpoint/internal/settle"
	"tillpoint/internal/store"
	"tillpoint/internal/xid"
)

// maxTxAttempts bounds the optimistic retry loop around serializable
// transactions. Past the bound the caller gets ErrConcurrentModification.
const maxTxAttempts = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// inSerializableTx runs fn inside a serializable transaction, retrying
// on serialization failures and deadlocks up to maxTxAttempts. Any
// error rolls the whole transaction back; no partial state survives.
func (s *Store) inSerializableTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}

		err = fn(tx)
		if err == nil {
			err = tx.Commit()
			if err == nil {
				return nil
			}
		} else {
			_ = tx.Rollback()
		}

		if isSerializationFailure(err) {
			continue
		}
		return err
	}
	return store.ErrConcurrentModification
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, price_cents, active, created_at)
		VALUES ($1,$2,$3,$4,now())
	`, product.SKU, product.Name, product.PriceCents, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO product_stock (sku, qty, updated_at) VALUES ($1, 0, now())
		ON CONFLICT (sku) DO NOTHING
	`, product.SKU); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, price_cents, active
		FROM products
		WHERE active = true AND sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]domain.Product, len(skus))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.PriceCents, &p.Active); err != nil {
			return nil, err
		}
		result[p.SKU] = p
	}
	return result, rows.Err()
}

func (s *Store) GetStockMap(ctx context.Context, skus []string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, qty FROM product_stock WHERE sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stockMap := make(map[string]int, len(skus))
	for _, sku := range skus {
		stockMap[sku] = 0
	}
	for rows.Next() {
		var sku string
		var qty int
		if err := rows.Scan(&sku, &qty); err != nil {
			return nil, err
		}
		stockMap[sku] = qty
	}
	return stockMap, rows.Err()
}

func (s *Store) SetStock(ctx context.Context, sku string, qty int) error {
	if sku == "" || qty < 0 {
		return store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE product_stock SET qty = $1, updated_at = now() WHERE sku = $2
	`, qty, sku)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, balance_cents, created_at)
		VALUES ($1,$2,$3,$4)
	`, customer.ID, customer.Name, customer.BalanceCents, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, balance_cents, created_at
		FROM customers WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.BalanceCents, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCustomerNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const saleColumns = `
	id, COALESCE(customer_id, ''), cashier_id, COALESCE(shift_id, ''),
	COALESCE(idempotency_key, ''), payment_method, subtotal_cents,
	discount_cents, tax_rate_percent, tax_cents, total_cents,
	amount_settled_cents, status, created_at
`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(
		&sale.ID, &sale.CustomerID, &sale.CashierID, &sale.ShiftID,
		&sale.IdempotencyKey, &sale.PaymentMethod, &sale.SubtotalCents,
		&sale.DiscountCents, &sale.TaxRatePercent, &sale.TaxCents, &sale.TotalCents,
		&sale.AmountSettledCents, &sale.Status, &sale.CreatedAt,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func loadSaleLines(ctx context.Context, q rowQuerier, saleID string) ([]domain.SaleLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT sku, qty, unit_price_cents
		FROM sale_lines WHERE sale_id = $1 ORDER BY line_no
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 4)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.SKU, &line.Qty, &line.UnitPriceCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) getSaleBy(ctx context.Context, q rowQuerier, where string, arg any, notFound error) (*domain.Sale, error) {
	sale, err := scanSale(q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}
	lines, err := loadSaleLines(ctx, q, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines
	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.getSaleBy(ctx, s.db, "id = $1", id, store.ErrSaleNotFound)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.getSaleBy(ctx, s.db, "idempotency_key = $1", key, store.ErrNotFound)
}

func (s *Store) ListPendingCreditSales(ctx context.Context, customerID string) ([]domain.Sale, error) {
	return s.listPendingCreditSales(ctx, s.db, customerID, false)
}

func (s *Store) listPendingCreditSales(ctx context.Context, q rowQuerier, customerID string, forUpdate bool) ([]domain.Sale, error) {
	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE customer_id = $1 AND payment_method = 'credit' AND status = 'pending'
		ORDER BY created_at, id
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 8)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) CreateCheckout(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.PaymentMethod == domain.PayCredit && sale.CustomerID == "" {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	var created *domain.Sale
	err := s.inSerializableTx(ctx, func(tx *sql.Tx) error {
		subtotal := int64(0)
		priced := make([]domain.SaleLine, 0, len(sale.Lines))
		for _, line := range sale.Lines {
			if line.Qty < 1 {
				return store.ErrInvalidInput
			}
			var priceCents int64
			var qty int
			err := tx.QueryRowContext(ctx, `
				SELECT p.price_cents, st.qty
				FROM products p
				JOIN product_stock st ON st.sku = p.sku
				WHERE p.sku = $1 AND p.active = true
				FOR UPDATE OF st
			`, line.SKU).Scan(&priceCents, &qty)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return store.ErrInvalidInput
				}
				return err
			}
			if qty < line.Qty {
				return store.ErrInsufficientStock
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE product_stock SET qty = qty - $1, updated_at = now() WHERE sku = $2
			`, line.Qty, line.SKU); err != nil {
				return err
			}
			priced = append(priced, domain.SaleLine{SKU: line.SKU, Qty: line.Qty, UnitPriceCents: priceCents})
			subtotal += int64(line.Qty) * priceCents
		}
		if sale.DiscountCents < 0 || sale.DiscountCents > subtotal {
			return store.ErrInvalidInput
		}

		sale.Lines = priced
		sale.SubtotalCents = subtotal
		taxBase := subtotal - sale.DiscountCents
		sale.TaxCents = money.Percent(taxBase, sale.TaxRatePercent)
		sale.TotalCents = taxBase + sale.TaxCents
		if sale.PaymentMethod == domain.PayCredit {
			sale.AmountSettledCents = 0
			sale.Status = domain.SaleStatusPending
		} else {
			sale.AmountSettledCents = sale.TotalCents
			sale.Status = domain.SaleStatusPaid
		}

		sale.ShiftID = ""
		shift, err := lockOpenShift(ctx, tx, sale.CashierID)
		if err != nil && !errors.Is(err, store.ErrShiftNotFound) {
			return err
		}
		if shift != nil {
			if err := drawer.RecordSale(shift, sale.PaymentMethod, sale.TotalCents); err != nil {
				return err
			}
			if err := updateShiftTotals(ctx, tx, shift); err != nil {
				return err
			}
			sale.ShiftID = shift.ID
		}

		if sale.CustomerID != "" {
			res, err := tx.ExecContext(ctx, `
				UPDATE customers SET balance_cents = balance_cents + $1 WHERE id = $2
			`, creditDelta(sale), sale.CustomerID)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return store.ErrCustomerNotFound
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sales (
				id, customer_id, cashier_id, shift_id, idempotency_key,
				payment_method, subtotal_cents, discount_cents, tax_rate_percent,
				tax_cents, total_cents, amount_settled_cents, status, created_at
			) VALUES ($1, NULLIF($2,''), $3, NULLIF($4,''), NULLIF($5,''), $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, sale.ID, sale.CustomerID, sale.CashierID, sale.ShiftID, sale.IdempotencyKey,
			sale.PaymentMethod, sale.SubtotalCents, sale.DiscountCents, sale.TaxRatePercent,
			sale.TaxCents, sale.TotalCents, sale.AmountSettledCents, sale.Status, sale.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return store.ErrInvalidInput
			}
			return err
		}
		for i, line := range sale.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sale_lines (sale_id, line_no, sku, qty, unit_price_cents)
				VALUES ($1,$2,$3,$4,$5)
			`, sale.ID, i, line.SKU, line.Qty, line.UnitPriceCents); err != nil {
				return err
			}
		}

		stored := sale
		created = &stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// creditDelta is the checkout's effect on the customer balance: credit
// sales raise outstanding exposure by their full total, settled sales
// leave it alone.
func creditDelta(sale domain.Sale) int64 {
	if sale.PaymentMethod == domain.PayCredit {
		return sale.TotalCents
	}
	return 0
}

func (s *Store) ApplySettlement(ctx context.Context, req domain.SettlementRequest) (*domain.SettlementResult, error) {
	var result *domain.SettlementResult
	err := s.inSerializableTx(ctx, func(tx *sql.Tx) error {
		var balance int64
		err := tx.QueryRowContext(ctx, `
			SELECT balance_cents FROM customers WHERE id = $1 FOR UPDATE
		`, req.CustomerID).Scan(&balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrCustomerNotFound
			}
			return err
		}

		// Idempotency check and ledger insert share this transaction, so
		// a retried request either sees the recorded entries or collides
		// with the unique index; it can never apply twice.
		if req.IdempotencyKey != "" {
			replay, err := s.replaySettlement(ctx, tx, req.IdempotencyKey, balance)
			if err != nil {
				return err
			}
			if replay != nil {
				result = replay
				return nil
			}
		}

		candidates, err := s.listPendingCreditSales(ctx, tx, req.CustomerID, true)
		if err != nil {
			return err
		}
		if req.TargetSaleID != "" && !containsSale(candidates, req.TargetSaleID) {
			target, err := s.getSaleBy(ctx, tx, "id = $1 FOR UPDATE", req.TargetSaleID, store.ErrSaleNotFound)
			if err != nil {
				return err
			}
			if target.CustomerID != req.CustomerID {
				return store.ErrSaleNotFound
			}
			candidates = append(candidates, *target)
		}

		plan, remainder := settle.Plan(req.AmountCents, req.TargetSaleID, candidates)
		if remainder > 0 && req.RejectOverpayment {
			return store.ErrOverpayment
		}

		now := time.Now().UTC()
		res := &domain.SettlementResult{
			Allocations:    make([]domain.SettlementAllocation, 0, len(plan)),
			IdempotencyKey: req.IdempotencyKey,
		}
		byID := make(map[string]domain.Sale, len(candidates))
		for _, sale := range candidates {
			byID[sale.ID] = sale
		}
		for _, allocation := range plan {
			sale := byID[allocation.SaleID]
			sale.AmountSettledCents += allocation.AllocatedCents
			if sale.AmountSettledCents >= sale.TotalCents {
				sale.Status = domain.SaleStatusPaid
			}
			byID[allocation.SaleID] = sale

			if _, err := tx.ExecContext(ctx, `
				UPDATE sales SET amount_settled_cents = $1, status = $2 WHERE id = $3
			`, sale.AmountSettledCents, sale.Status, sale.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ledger_entries (id, customer_id, sale_id, amount_cents, type, method, idempotency_key, created_at)
				VALUES ($1,$2,$3,$4,'payment',$5,NULLIF($6,''),$7)
			`, xid.New("ledger"), req.CustomerID, sale.ID, allocation.AllocatedCents, req.Method, req.IdempotencyKey, now); err != nil {
				if isUniqueViolation(err) {
					// Lost a same-key race; retry will replay the winner.
					return &pgconn.PgError{Code: "40001"}
				}
				return err
			}

			res.Allocations = append(res.Allocations, domain.SettlementAllocation{
				SaleID:                sale.ID,
				AllocatedCents:        allocation.AllocatedCents,
				NewAmountSettledCents: sale.AmountSettledCents,
				NewStatus:             sale.Status,
			})
			res.TotalAppliedCents += allocation.AllocatedCents
		}

		if res.TotalAppliedCents > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE customers SET balance_cents = balance_cents - $1 WHERE id = $2
			`, res.TotalAppliedCents, req.CustomerID); err != nil {
				return err
			}
		}
		res.CustomerBalanceCents = balance - res.TotalAppliedCents

		if res.TotalAppliedCents > 0 {
			shift, err := lockOpenShift(ctx, tx, req.CashierID)
			if err != nil && !errors.Is(err, store.ErrShiftNotFound) {
				return err
			}
			if shift != nil {
				if err := drawer.RecordSettlement(shift, req.Method, res.TotalAppliedCents); err != nil {
					return err
				}
				if err := updateShiftTotals(ctx, tx, shift); err != nil {
					return err
				}
				res.AffectedShiftID = shift.ID
			}
		}

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// replaySettlement rebuilds the result of an already-applied settlement
// from its ledger entries. Returns nil when the key is unseen.
func (s *Store) replaySettlement(ctx context.Context, tx *sql.Tx, key string, balance int64) (*domain.SettlementResult, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT l.sale_id, l.amount_cents, s.amount_settled_cents, s.status
		FROM ledger_entries l
		JOIN sales s ON s.id = l.sale_id
		WHERE l.idempotency_key = $1
		ORDER BY l.created_at, l.id
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &domain.SettlementResult{IdempotencyKey: key, Reused: true, CustomerBalanceCents: balance}
	for rows.Next() {
		var allocation domain.SettlementAllocation
		if err := rows.Scan(&allocation.SaleID, &allocation.AllocatedCents, &allocation.NewAmountSettledCents, &allocation.NewStatus); err != nil {
			return nil, err
		}
		result.Allocations = append(result.Allocations, allocation)
		result.TotalAppliedCents += allocation.AllocatedCents
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result.Allocations) == 0 {
		return nil, nil
	}
	return result, nil
}

func (s *Store) FindLedgerByIdempotency(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, COALESCE(sale_id,''), COALESCE(return_id,''), amount_cents, type, method, COALESCE(idempotency_key,''), created_at
		FROM ledger_entries
		WHERE idempotency_key = $1
		ORDER BY created_at, id
		LIMIT 1
	`, key).Scan(&entry.ID, &entry.CustomerID, &entry.SaleID, &entry.ReturnID, &entry.AmountCents, &entry.Type, &entry.Method, &entry.IdempotencyKey, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, customerID string, limit int) ([]domain.LedgerEntry, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, COALESCE(sale_id,''), COALESCE(return_id,''), amount_cents, type, method, COALESCE(idempotency_key,''), created_at
		FROM ledger_entries
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		var entry domain.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.CustomerID, &entry.SaleID, &entry.ReturnID, &entry.AmountCents, &entry.Type, &entry.Method, &entry.IdempotencyKey, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const shiftColumns = `
	id, cashier_id, status, starting_cash_cents,
	cash_sales_cents, card_sales_cents, mobile_sales_cents, credit_sales_cents, total_sales_cents,
	cash_settlements_cents, card_settlements_cents, mobile_settlements_cents,
	cash_returns_cents, expected_cash_cents, actual_cash_cents, cash_difference_cents,
	opened_at, closed_at
`

func scanShift(row interface{ Scan(...any) error }) (domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	err := row.Scan(
		&shift.ID, &shift.CashierID, &shift.Status, &shift.StartingCashCents,
		&shift.CashSalesCents, &shift.CardSalesCents, &shift.MobileSalesCents, &shift.CreditSalesCents, &shift.TotalSalesCents,
		&shift.CashSettlementsCents, &shift.CardSettlementsCents, &shift.MobileSettlementsCents,
		&shift.CashReturnsCents, &shift.ExpectedCashCents, &shift.ActualCashCents, &shift.CashDifferenceCents,
		&shift.OpenedAt, &closedAt,
	)
	if err != nil {
		return domain.Shift{}, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	return shift, nil
}

func lockOpenShift(ctx context.Context, tx *sql.Tx, cashierID string) (*domain.Shift, error) {
	if cashierID == "" {
		return nil, store.ErrShiftNotFound
	}
	shift, err := scanShift(tx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE cashier_id = $1 AND status = 'open'
		FOR UPDATE
	`, cashierID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrShiftNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func lockShiftByID(ctx context.Context, tx *sql.Tx, shiftID string) (*domain.Shift, error) {
	shift, err := scanShift(tx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE id = $1 FOR UPDATE
	`, shiftID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrShiftNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func updateShiftTotals(ctx context.Context, tx *sql.Tx, shift *domain.Shift) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE shifts SET
			cash_sales_cents = $1, card_sales_cents = $2, mobile_sales_cents = $3,
			credit_sales_cents = $4, total_sales_cents = $5,
			cash_settlements_cents = $6, card_settlements_cents = $7, mobile_settlements_cents = $8,
			cash_returns_cents = $9, expected_cash_cents = $10, updated_at = now()
		WHERE id = $11
	`, shift.CashSalesCents, shift.CardSalesCents, shift.MobileSalesCents,
		shift.CreditSalesCents, shift.TotalSalesCents,
		shift.CashSettlementsCents, shift.CardSettlementsCents, shift.MobileSettlementsCents,
		shift.CashReturnsCents, shift.ExpectedCashCents, shift.ID)
	return err
}

func (s *Store) OpenShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.CashierID == "" || shift.StartingCashCents < 0 {
		return nil, store.ErrInvalidInput
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

	var opened *domain.Shift
	err := s.inSerializableTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM shifts WHERE cashier_id = $1 AND status = 'open'
		`, shift.CashierID).Scan(&existing)
		if err == nil {
			return store.ErrShiftAlreadyOpen
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shifts (
				id, cashier_id, status, starting_cash_cents, expected_cash_cents, opened_at
			) VALUES ($1,$2,'open',$3,$4,$5)
		`, shift.ID, shift.CashierID, shift.StartingCashCents, shift.ExpectedCashCents, shift.OpenedAt); err != nil {
			if isUniqueViolation(err) {
				return store.ErrShiftAlreadyOpen
			}
			return err
		}
		stored := shift
		opened = &stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

func (s *Store) CloseShift(ctx context.Context, shiftID string, actualCashCents int64, closedAt time.Time) (*domain.Shift, error) {
	var closed *domain.Shift
	err := s.inSerializableTx(ctx, func(tx *sql.Tx) error {
		shift, err := lockShiftByID(ctx, tx, shiftID)
		if err != nil {
			return err
		}
		if shift.Status == domain.ShiftStatusClosed {
			return store.ErrShiftAlreadyClosed
		}

		shift.Status = domain.ShiftStatusClosed
		shift.ActualCashCents = actualCashCents
		shift.CashDifferenceCents = actualCashCents - shift.ExpectedCashCents
		at := closedAt.UTC()
		shift.ClosedAt = &at

		if _, err := tx.ExecContext(ctx, `
			UPDATE shifts SET status = 'closed', actual_cash_cents = $1,
				cash_difference_cents = $2, closed_at = $3, updated_at = now()
			WHERE id = $4
		`, shift.ActualCashCents, shift.CashDifferenceCents, at, shift.ID); err != nil {
			return err
		}
		closed = shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func (s *Store) GetShiftByID(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrShiftNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) FindOpenShiftFor(ctx context.Context, cashierID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE cashier_id = $1 AND status = 'open'
	`, cashierID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrShiftNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.SaleID == "" || len(ret.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	ret.Status = domain.ReturnStatusPending

	var created *domain.Return
	err := s.inSerializableTx(ctx, func(tx *sql.Tx) error {
		sale, err := s.getSaleBy(ctx, tx, "id = $1 FOR UPDATE", ret.SaleID, store.ErrSaleNotFound)
		if err != nil {
			return err
		}
		ret.CustomerID = sale.CustomerID

		if err := checkOverReturn(ctx, tx, *sale, ret.Items); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO returns (
				id, sale_id, customer_id, reason, total_return_cents,
				restocking_fee_cents, refund_cents, status, cash_impact_cents, created_at
			) VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,'pending',0,$8)
		`, ret.ID, ret.SaleID, ret.CustomerID, ret.Reason, ret.TotalReturnCents,
			ret.RestockingFeeCents, ret.RefundCents, ret.CreatedAt); err != nil {
			return err
		}
		for i, item := range ret.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO return_items (return_id, line_no, sku, qty, unit_price_cents)
				VALUES ($1,$2,NULLIF($3,''),$4,$5)
			`, ret.ID, i, item.SKU, item.Qty, item.UnitPriceCents); err != nil {
				return err
			}
		}
		stored := ret
		created = &stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func checkOverReturn(ctx context.Context, tx *sql.Tx, sale domain.Sale, items []domain.ReturnItem) error {
	soldBySKU := make(map[string]int, len(sale.Lines))
	for _, line := range sale.Lines {
		soldBySKU[line.SKU] += line.Qty
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT ri.sku, SUM(ri.qty)
		FROM return_items ri
		JOIN returns r ON r.id = ri.return_id
		WHERE r.sale_id = $1 AND r.status <> 'rejected' AND ri.sku IS NOT NULL
		GROUP BY ri.sku
	`, sale.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	returnedBySKU := make(map[string]int)
	for rows.Next() {
		var sku string
		var qty int
		if err := rows.Scan(&sku, &qty); err != nil {
			return err
		}
		returnedBySKU[sku] = qty
	}
	if err := rows.Err(); err != nil {
		return err
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

const returnColumns = `
	id, sale_id, COALESCE(customer_id,''), COALESCE(reason,''),
	total_return_cents, restocking_fee_cents, refund_cents, status,
	COALESCE(refund_method,''), COALESCE(reviewed_by,''), COALESCE(review_note,''),
	cash_impact_cents, COALESCE(affected_shift_id,''), created_at, reviewed_at, refunded_at
`

func scanReturn(row interface{ Scan(...any) error }) (domain.Return, error) {
	var ret domain.Return
	var reviewedAt, refundedAt sql.NullTime
	err := row.Scan(
		&ret.ID, &ret.SaleID, &ret.CustomerID, &ret.Reason,
		&ret.TotalReturnCents, &ret.RestockingFeeCents, &ret.RefundCents, &ret.Status,
		&ret.RefundMethod, &ret.ReviewedBy, &ret.ReviewNote,
		&ret.CashImpactCents, &ret.AffectedShiftID, &ret.CreatedAt, &reviewedAt, &refundedAt,
	)
	if err != nil {
		return domain.Return{}, err
	}
	ret.CreatedAt = ret.CreatedAt.UTC()
	if reviewedAt.Valid {
		at := reviewedAt.Time.UTC()
		ret.ReviewedAt = &at
	}
	if refundedAt.Valid {
		at := refundedAt.Time.UTC()
		ret.RefundedAt = &at
	}
	return ret, nil
}

func loadReturnItems(ctx context.Context, q rowQuerier, returnID string) ([]domain.ReturnItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COALESCE(sku,''), qty, unit_price_cents
		FROM return_items WHERE return_id = $1 ORDER BY line_no
	`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ReturnItem, 0, 4)
	for rows.Next() {
		var item domain.ReturnItem
		if err := rows.Scan(&item.SKU, &item.Qty, &item.UnitPriceCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) getReturn(ctx context.Context, q rowQuerier, where string, arg any) (*domain.Return, error) {
	ret, err := scanReturn(q.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM returns WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrReturnNotFound
		}
		return nil, err
	}
	items, err := loadReturnItems(ctx, q, ret.ID)
	if err != nil {
		return nil, err
	}
	ret.Items = items
	return &ret, nil
}

func (s *Store) GetReturnByID(ctx context.Context, id string) (*domain.Return, error) {
	return s.getReturn(ctx, s.db, "id = $1", id)
}

func (s *Store) ReviewReturn(ctx context.Context, returnID string, status string, reviewer string, note string, at time.Time) (*domain.Return, error) {
	if status != domain.ReturnStatusApproved && status != domain.ReturnStatusRejected {
		return nil, store.ErrInvalidInput
	}

	var reviewed *domain.Return
	err := s.inSerializableTx(ctx, func(tx *sql.Tx) error {
		ret, err := s.getReturn(ctx, tx, "id = $1 FOR UPDATE", returnID)
		if err != nil {
			return err
		}
		if ret.Status != domain.ReturnStatusPending {
			return store.ErrInvalidReturnState
		}

		reviewedAt := at.UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE returns SET status = $1, reviewed_by = $2, review_note = NULLIF($3,''), reviewed_at = $4
			WHERE id = $5
		`, status, reviewer, note, reviewedAt, returnID); err != nil {
			return err
		}

		ret.Status = status
		ret.ReviewedBy = reviewer
		ret.ReviewNote = note
		ret.ReviewedAt = &reviewedAt
		reviewed = ret
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reviewed, nil
}

func (s *Store) RefundReturn(ctx context.Context, returnID string, refundMethod string, at time.Time) (*domain.Return, error) {
	var refunded *domain.Return
	err := s.inSerializableTx(ctx, func(tx *sql.Tx) error {
		ret, err := s.getReturn(ctx, tx, "id = $1 FOR UPDATE", returnID)
		if err != nil {
			return err
		}
		if ret.Status != domain.ReturnStatusApproved {
			return store.ErrReturnNotApproved
		}

		sale, err := s.getSaleBy(ctx, tx, "id = $1 FOR UPDATE", ret.SaleID, store.ErrSaleNotFound)
		if err != nil {
			return err
		}

		cashImpact := drawer.CashImpact(sale.PaymentMethod, refundMethod, ret.RefundCents)

		// The drawer effect belongs to the shift that processed the
		// original sale; once that shift closes it is immutable and the
		// refund carries no shift reference.
		affectedShiftID := ""
		if cashImpact != 0 && sale.ShiftID != "" {
			shift, err := lockShiftByID(ctx, tx, sale.ShiftID)
			if err != nil && !errors.Is(err, store.ErrShiftNotFound) {
				return err
			}
			if shift != nil && shift.Status == domain.ShiftStatusOpen {
				if err := drawer.RecordReturn(shift, cashImpact); err != nil {
					return err
				}
				if err := updateShiftTotals(ctx, tx, shift); err != nil {
					return err
				}
				affectedShiftID = shift.ID
			}
		}

		if sale.PaymentMethod == domain.PayCredit && sale.CustomerID != "" {
			var balance int64
			if err := tx.QueryRowContext(ctx, `
				SELECT balance_cents FROM customers WHERE id = $1 FOR UPDATE
			`, sale.CustomerID).Scan(&balance); err != nil {
				return err
			}
			forgiven := ret.RefundCents
			if forgiven > balance {
				forgiven = balance
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE customers SET balance_cents = balance_cents - $1 WHERE id = $2
			`, forgiven, sale.CustomerID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ledger_entries (id, customer_id, sale_id, return_id, amount_cents, type, method, created_at)
				VALUES ($1,$2,$3,$4,$5,'refund',$6,$7)
			`, xid.New("ledger"), sale.CustomerID, sale.ID, ret.ID, forgiven, refundMethod, at.UTC()); err != nil {
				return err
			}
		}

		for _, item := range ret.Items {
			if item.SKU == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE product_stock SET qty = qty + $1, updated_at = now() WHERE sku = $2
			`, item.Qty, item.SKU); err != nil {
				return err
			}
		}

		refundedAt := at.UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE returns SET status = 'refunded', refund_method = $1, cash_impact_cents = $2,
				affected_shift_id = NULLIF($3,''), refunded_at = $4
			WHERE id = $5
		`, refundMethod, cashImpact, affectedShiftID, refundedAt, returnID); err != nil {
			return err
		}

		ret.Status = domain.ReturnStatusRefunded
		ret.RefundMethod = refundMethod
		ret.CashImpactCents = cashImpact
		ret.AffectedShiftID = affectedShiftID
		ret.RefundedAt = &refundedAt
		refunded = ret
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refunded, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func containsSale(sales []domain.Sale, id string) bool {
	for _, sale := range sales {
		if sale.ID == id {
			return true
		}
	}
	return false
}
