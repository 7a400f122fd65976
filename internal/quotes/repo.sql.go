package quotes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ironstone-erp/ironstone-erp/internal/platform/db"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for quotes.
type Repository interface {
	Get(ctx context.Context, id int64) (*Quote, error)
	List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error)
	Create(ctx context.Context, q Quote) (int64, error)
	Replace(ctx context.Context, q Quote) error
	Delete(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, from, to QuoteStatus, reason *string) error
	SetTotal(ctx context.Context, id int64, total float64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const quoteColumns = `id, customer_id, delivery_address, delivery_date, transport_cost, total_amount, status, rejection_reason, created_by, created_at, updated_at`

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.CustomerID, &q.DeliveryAddress, &q.DeliveryDate, &q.TransportCost,
		&q.TotalAmount, &q.Status, &q.RejectionReason, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Quote, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM quotes WHERE id = $1`, quoteColumns), id))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, quote_id, description, quantity, unit_price, line_total FROM quote_items WHERE quote_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it QuoteItem
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.Description, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		q.Items = append(q.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	svcRows, err := r.pool.Query(ctx, `SELECT id, quote_id, name, rate FROM quote_services WHERE quote_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer svcRows.Close()
	for svcRows.Next() {
		var sv QuoteService
		if err := svcRows.Scan(&sv.ID, &sv.QuoteID, &sv.Name, &sv.Rate); err != nil {
			return nil, err
		}
		q.Services = append(q.Services, sv)
	}
	return q, svcRows.Err()
}

func (r *repository) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	if req.CustomerID > 0 {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, req.CustomerID)
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
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM quotes %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM quotes %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		var q Quote
		if err := rows.Scan(&q.ID, &q.CustomerID, &q.DeliveryAddress, &q.DeliveryDate, &q.TransportCost,
			&q.TotalAmount, &q.Status, &q.RejectionReason, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO quotes (customer_id, delivery_address, delivery_date, transport_cost, total_amount, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id`,
			q.CustomerID, q.DeliveryAddress, q.DeliveryDate, q.TransportCost, q.TotalAmount, q.Status, q.CreatedBy).Scan(&id)
		if err != nil {
			return err
		}
		return insertLines(ctx, tx, id, q.Items, q.Services)
	})
	return id, err
}

// Replace rewrites the quote header and its full item/service collections in
// one transaction.
func (r *repository) Replace(ctx context.Context, q Quote) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE quotes SET delivery_address = $2, delivery_date = $3, transport_cost = $4, total_amount = $5, updated_at = NOW() WHERE id = $1`,
			q.ID, q.DeliveryAddress, q.DeliveryDate, q.TransportCost, q.TotalAmount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, q.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM quote_services WHERE quote_id = $1`, q.ID); err != nil {
			return err
		}
		return insertLines(ctx, tx, q.ID, q.Items, q.Services)
	})
}

func insertLines(ctx context.Context, tx pgx.Tx, quoteID int64, items []QuoteItem, services []QuoteService) error {
	for _, it := range items {
		if _, err := tx.Exec(ctx, `INSERT INTO quote_items (quote_id, description, quantity, unit_price, line_total) VALUES ($1, $2, $3, $4, $5)`,
			quoteID, it.Description, it.Quantity, it.UnitPrice, it.LineTotal); err != nil {
			return err
		}
	}
	for _, sv := range services {
		if _, err := tx.Exec(ctx, `INSERT INTO quote_services (quote_id, name, rate) VALUES ($1, $2, $3)`,
			quoteID, sv.Name, sv.Rate); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	// quote_items and quote_services cascade with the quote row.
	tag, err := r.pool.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetStatus moves the quote between states with a compare-and-set on the
// current status, so two sessions racing the same transition cannot both win.
func (r *repository) SetStatus(ctx context.Context, id int64, from, to QuoteStatus, reason *string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET status = $3, rejection_reason = $4, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the quote is gone or its status moved underneath us.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: quote %d is no longer %s", shared.ErrInvalidState, id, from)
	}
	return nil
}

func (r *repository) SetTotal(ctx context.Context, id int64, total float64) error {
	_, err := r.pool.Exec(ctx, `UPDATE quotes SET total_amount = $2, updated_at = NOW() WHERE id = $1`, id, total)
	return err
}
