package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ironstone-erp/ironstone-erp/internal/platform/db"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for orders.
type Repository interface {
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error)
	// Insert writes the order as the given user so the store's row policies
	// evaluate against the caller, not the service account.
	Insert(ctx context.Context, userID int64, o Order, note string) (int64, error)
	UpdateDeliveryStatus(ctx context.Context, id int64, status DeliveryStatus) error
	AppendNote(ctx context.Context, orderID int64, note string, userID int64) error
	ListNotes(ctx context.Context, orderID int64) ([]OrderNote, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const orderColumns = `id, quote_id, customer_id, delivery_address, delivery_date, total_amount, delivery_status, payment_status, created_by, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns), id).
		Scan(&o.ID, &o.QuoteID, &o.CustomerID, &o.DeliveryAddress, &o.DeliveryDate, &o.TotalAmount,
			&o.DeliveryStatus, &o.PaymentStatus, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	notes, err := r.ListNotes(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Notes = notes
	return &o, nil
}

func (r *repository) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.CustomerID > 0 {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, req.CustomerID)
		argPos++
	}
	if req.DeliveryStatus != "" {
		conditions = append(conditions, fmt.Sprintf("delivery_status = $%d", argPos))
		args = append(args, req.DeliveryStatus)
		argPos++
	}
	if req.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", argPos))
		args = append(args, req.PaymentStatus)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM orders %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.QuoteID, &o.CustomerID, &o.DeliveryAddress, &o.DeliveryDate, &o.TotalAmount,
			&o.DeliveryStatus, &o.PaymentStatus, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *repository) Insert(ctx context.Context, userID int64, o Order, note string) (int64, error) {
	var id int64
	err := db.WithUserTx(ctx, r.pool, userID, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO orders (quote_id, customer_id, delivery_address, delivery_date, total_amount, delivery_status, payment_status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING id`,
			o.QuoteID, o.CustomerID, o.DeliveryAddress, o.DeliveryDate, o.TotalAmount,
			o.DeliveryStatus, o.PaymentStatus, o.CreatedBy).Scan(&id)
		if err != nil {
			return err
		}
		if note != "" {
			if _, err := tx.Exec(ctx, `INSERT INTO order_notes (order_id, note, created_by, created_at) VALUES ($1, $2, $3, NOW())`,
				id, note, userID); err != nil {
				return err
			}
		}
		return nil
	})
	return id, err
}

func (r *repository) UpdateDeliveryStatus(ctx context.Context, id int64, status DeliveryStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET delivery_status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) AppendNote(ctx context.Context, orderID int64, note string, userID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO order_notes (order_id, note, created_by, created_at) VALUES ($1, $2, $3, NOW())`,
		orderID, note, userID)
	return err
}

func (r *repository) ListNotes(ctx context.Context, orderID int64) ([]OrderNote, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, note, created_by, created_at FROM order_notes WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderNote
	for rows.Next() {
		var n OrderNote
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Note, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
