package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ironstone-erp/ironstone-erp/internal/platform/db"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// OrderStatusMismatch is an order whose payment status disagrees with its
// linked invoice.
type OrderStatusMismatch struct {
	OrderID       int64
	InvoiceStatus PaymentStatus
}

// OverdueInvoice identifies an invoice flagged overdue and the order to
// propagate the flag to.
type OverdueInvoice struct {
	ID      int64
	OrderID int64
}

// Repository provides PostgreSQL backed persistence for invoices, payments
// and the customer ledger.
type Repository interface {
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	FindInvoiceByOrder(ctx context.Context, orderID int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	// CreateInvoice inserts the invoice, or hands back the existing one for
	// the same order. created reports which happened.
	CreateInvoice(ctx context.Context, inv Invoice) (id int64, created bool, err error)
	UpdateInvoiceSettlement(ctx context.Context, id int64, paid, outstanding float64, status PaymentStatus) error

	OrderBillingInfo(ctx context.Context, orderID int64) (customerID int64, total float64, err error)
	PropagateOrderPaymentStatus(ctx context.Context, orderID int64, status PaymentStatus) error

	InsertPayment(ctx context.Context, p Payment) (int64, error)
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	ListPaymentsByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error)
	SumCompletedPayments(ctx context.Context, invoiceID int64) (float64, error)

	AppendLedgerEntry(ctx context.Context, e LedgerEntry) (*LedgerEntry, error)
	LedgerEntriesForCustomer(ctx context.Context, customerID int64) ([]LedgerEntry, error)

	MismatchedOrders(ctx context.Context) ([]OrderStatusMismatch, error)
	OrdersWithoutInvoices(ctx context.Context) ([]int64, error)
	FlagOverdueInvoices(ctx context.Context, asOf time.Time) ([]OverdueInvoice, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const invoiceColumns = `id, number, order_id, customer_id, total_amount, paid_amount, outstanding_amount, payment_status, issue_date, due_date, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.OrderID, &inv.CustomerID, &inv.TotalAmount, &inv.PaidAmount,
		&inv.OutstandingAmount, &inv.PaymentStatus, &inv.IssueDate, &inv.DueDate, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM invoices WHERE id = $1`, invoiceColumns), id))
}

func (r *repository) FindInvoiceByOrder(ctx context.Context, orderID int64) (*Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM invoices WHERE order_id = $1`, invoiceColumns), orderID))
}

func (r *repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.CustomerID > 0 {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, req.CustomerID)
		argPos++
	}
	if req.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", argPos))
		args = append(args, req.PaymentStatus)
		argPos++
	}

	whereClause := ""
	for i, cond := range conditions {
		if i == 0 {
			whereClause = "WHERE " + cond
		} else {
			whereClause += " AND " + cond
		}
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM invoices %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY issue_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.OrderID, &inv.CustomerID, &inv.TotalAmount, &inv.PaidAmount,
			&inv.OutstandingAmount, &inv.PaymentStatus, &inv.IssueDate, &inv.DueDate, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (r *repository) CreateInvoice(ctx context.Context, inv Invoice) (int64, bool, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO invoices (number, order_id, customer_id, total_amount, paid_amount, outstanding_amount, payment_status, issue_date, due_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()) RETURNING id`,
		inv.Number, inv.OrderID, inv.CustomerID, inv.TotalAmount, inv.PaidAmount, inv.OutstandingAmount,
		inv.PaymentStatus, inv.IssueDate, inv.DueDate).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		// The unique index on order_id backstops the idempotency check.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			existing, findErr := r.FindInvoiceByOrder(ctx, inv.OrderID)
			if findErr != nil {
				return 0, false, err
			}
			return existing.ID, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func (r *repository) UpdateInvoiceSettlement(ctx context.Context, id int64, paid, outstanding float64, status PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET paid_amount = $2, outstanding_amount = $3, payment_status = $4, updated_at = NOW() WHERE id = $1`,
		id, paid, outstanding, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) OrderBillingInfo(ctx context.Context, orderID int64) (int64, float64, error) {
	var customerID int64
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT customer_id, total_amount FROM orders WHERE id = $1`, orderID).Scan(&customerID, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, shared.ErrNotFound
	}
	return customerID, total, err
}

func (r *repository) PropagateOrderPaymentStatus(ctx context.Context, orderID int64, status PaymentStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE orders SET payment_status = $2, updated_at = NOW() WHERE id = $1`, orderID, status)
	return err
}

func (r *repository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO payments (invoice_id, customer_id, amount, method, status, reference, notes, payment_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW()) RETURNING id`,
		p.InvoiceID, p.CustomerID, p.Amount, p.Method, p.Status, p.Reference, p.Notes, p.PaymentDate).Scan(&id)
	return id, err
}

func (r *repository) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	var p Payment
	var rawState string
	err := r.pool.QueryRow(ctx, `SELECT id, invoice_id, customer_id, amount, method, status, reference, notes, payment_date, created_at FROM payments WHERE id = $1`, id).
		Scan(&p.ID, &p.InvoiceID, &p.CustomerID, &p.Amount, &p.Method, &rawState, &p.Reference, &p.Notes, &p.PaymentDate, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Status, err = ParsePaymentState(rawState); err != nil {
		return nil, fmt.Errorf("payment %d: %w", p.ID, err)
	}
	return &p, nil
}

func (r *repository) ListPaymentsByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, customer_id, amount, method, status, reference, notes, payment_date, created_at
FROM payments WHERE invoice_id = $1 ORDER BY payment_date, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		var rawState string
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.CustomerID, &p.Amount, &p.Method, &rawState, &p.Reference, &p.Notes, &p.PaymentDate, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.Status, err = ParsePaymentState(rawState); err != nil {
			return nil, fmt.Errorf("payment %d: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SumCompletedPayments is a fresh aggregate over every completed payment for
// the invoice. Settlement recomputation must use this, never an incremental
// add, so concurrent payment inserts cannot drift the paid amount.
func (r *repository) SumCompletedPayments(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1 AND status = $2`,
		invoiceID, StateCompleted).Scan(&sum)
	return sum, err
}

// AppendLedgerEntry writes a new entry with its running balance derived from
// the previous entry. Appends for the same customer are serialized with an
// advisory lock so two writers cannot both read the same prior balance.
// Callers must date entries at insertion time; an entry_date earlier than the
// existing tail would place the entry before the prior it was derived from.
func (r *repository) AppendLedgerEntry(ctx context.Context, e LedgerEntry) (*LedgerEntry, error) {
	var out LedgerEntry
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(0x1ed6e4), int32(e.CustomerID)); err != nil {
			return err
		}

		var prior float64
		err := tx.QueryRow(ctx, `SELECT running_balance FROM ledger_entries WHERE customer_id = $1
ORDER BY entry_date DESC, created_at DESC, id DESC LIMIT 1`, e.CustomerID).Scan(&prior)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		e.RunningBalance = prior + e.EntryType.Contribution(e.Amount)
		return tx.QueryRow(ctx, `INSERT INTO ledger_entries (customer_id, invoice_id, payment_id, entry_type, amount, running_balance, description, entry_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW()) RETURNING id, customer_id, invoice_id, payment_id, entry_type, amount, running_balance, description, entry_date, created_at`,
			e.CustomerID, e.InvoiceID, e.PaymentID, e.EntryType, e.Amount, e.RunningBalance, e.Description, e.EntryDate).
			Scan(&out.ID, &out.CustomerID, &out.InvoiceID, &out.PaymentID, &out.EntryType, &out.Amount, &out.RunningBalance, &out.Description, &out.EntryDate, &out.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repository) LedgerEntriesForCustomer(ctx context.Context, customerID int64) ([]LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, customer_id, invoice_id, payment_id, entry_type, amount, running_balance, description, entry_date, created_at
FROM ledger_entries WHERE customer_id = $1 ORDER BY entry_date, created_at, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var rawType string
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.InvoiceID, &e.PaymentID, &rawType, &e.Amount, &e.RunningBalance, &e.Description, &e.EntryDate, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.EntryType, err = ParseEntryType(rawType); err != nil {
			return nil, fmt.Errorf("ledger entry %d: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) MismatchedOrders(ctx context.Context) ([]OrderStatusMismatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT o.id, i.payment_status FROM orders o
JOIN invoices i ON i.order_id = o.id WHERE o.payment_status <> i.payment_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderStatusMismatch
	for rows.Next() {
		var m OrderStatusMismatch
		if err := rows.Scan(&m.OrderID, &m.InvoiceStatus); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) OrdersWithoutInvoices(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT o.id FROM orders o
LEFT JOIN invoices i ON i.order_id = o.id WHERE i.id IS NULL ORDER BY o.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *repository) FlagOverdueInvoices(ctx context.Context, asOf time.Time) ([]OverdueInvoice, error) {
	rows, err := r.pool.Query(ctx, `UPDATE invoices SET payment_status = $1, updated_at = NOW()
WHERE due_date < $2 AND payment_status IN ($3, $4) RETURNING id, order_id`,
		PaymentOverdue, asOf, PaymentUnpaid, PaymentPartial)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OverdueInvoice
	for rows.Next() {
		var o OverdueInvoice
		if err := rows.Scan(&o.ID, &o.OrderID); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
