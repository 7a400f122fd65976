package statements

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ironstone-erp/ironstone-erp/internal/billing"
)

// Repository reads the ledger. Statements never write; the entry log is
// owned by billing.
type Repository interface {
	EntriesBefore(ctx context.Context, customerID int64, before time.Time) ([]billing.LedgerEntry, error)
	EntriesBetween(ctx context.Context, customerID int64, start, end time.Time) ([]billing.LedgerEntry, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entryColumns = `id, customer_id, invoice_id, payment_id, entry_type, amount, running_balance, description, entry_date, created_at`

func (r *repository) EntriesBefore(ctx context.Context, customerID int64, before time.Time) ([]billing.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE customer_id = $1 AND entry_date < $2 ORDER BY entry_date, created_at, id`, customerID, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *repository) EntriesBetween(ctx context.Context, customerID int64, start, end time.Time) ([]billing.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE customer_id = $1 AND entry_date >= $2 AND entry_date <= $3 ORDER BY entry_date, created_at, id`, customerID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]billing.LedgerEntry, error) {
	var out []billing.LedgerEntry
	for rows.Next() {
		var e billing.LedgerEntry
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.InvoiceID, &e.PaymentID, &e.EntryType, &e.Amount,
			&e.RunningBalance, &e.Description, &e.EntryDate, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
