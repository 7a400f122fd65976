package statements

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ironstone-erp/ironstone-erp/internal/billing"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// Statement is a customer's account activity over a date range. The caller
// can render a running-balance column by folding Entries in order starting
// from OpeningBalance.
type Statement struct {
	CustomerID     int64                 `json:"customer_id"`
	StartDate      time.Time             `json:"start_date"`
	EndDate        time.Time             `json:"end_date"`
	OpeningBalance float64               `json:"opening_balance"`
	TotalDebits    float64               `json:"total_debits"`
	TotalCredits   float64               `json:"total_credits"`
	ClosingBalance float64               `json:"closing_balance"`
	OpeningDisplay string                `json:"opening_display"`
	ClosingDisplay string                `json:"closing_display"`
	Entries        []billing.LedgerEntry `json:"entries"`
}

// Service generates customer statements from the ledger.
type Service struct {
	repo   Repository
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Generate builds the statement for [start, end], end inclusive. Opening
// balance folds every entry dated strictly before start; period debits and
// credits fold the in-range entries. Concurrent requests for the same
// statement share one computation.
func (s *Service) Generate(ctx context.Context, customerID int64, start, end time.Time) (*Statement, error) {
	if customerID <= 0 {
		return nil, shared.FieldErrors{"customer_id": "customer is required"}
	}
	if end.Before(start) {
		return nil, shared.FieldErrors{"end_date": "end date must not precede start date"}
	}

	key := fmt.Sprintf("%d:%d:%d", customerID, start.Unix(), end.Unix())
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.generate(ctx, customerID, start, end)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Statement), nil
}

func (s *Service) generate(ctx context.Context, customerID int64, start, end time.Time) (*Statement, error) {
	prior, err := s.repo.EntriesBefore(ctx, customerID, start)
	if err != nil {
		return nil, fmt.Errorf("load entries before %s: %w", start.Format(time.DateOnly), err)
	}
	opening := billing.FoldBalance(prior)

	entries, err := s.repo.EntriesBetween(ctx, customerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load entries in range: %w", err)
	}

	var debits, credits float64
	for _, e := range entries {
		if e.EntryType == billing.EntryDebit {
			debits += e.Amount
		} else {
			credits += math.Abs(e.Amount)
		}
	}

	if entries == nil {
		entries = []billing.LedgerEntry{}
	}
	stmt := &Statement{
		CustomerID:     customerID,
		StartDate:      start,
		EndDate:        end,
		OpeningBalance: opening,
		TotalDebits:    debits,
		TotalCredits:   credits,
		ClosingBalance: opening + debits - credits,
		Entries:        entries,
	}
	stmt.OpeningDisplay = shared.FormatZAR(stmt.OpeningBalance)
	stmt.ClosingDisplay = shared.FormatZAR(stmt.ClosingBalance)
	s.logger.Info("statement generated", "customer_id", customerID,
		"entries", len(entries), "closing_balance", stmt.ClosingBalance)
	return stmt, nil
}
