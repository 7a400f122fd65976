package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// invoiceTerms is how long after issue an invoice falls due.
const invoiceTerms = 30 * 24 * time.Hour

// AuditPort records invoice and payment events. Nil disables auditing.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements invoicing, payment recording and the customer ledger.
type Service struct {
	repo   Repository
	logger *slog.Logger
	audit  AuditPort
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger, audit AuditPort) *Service {
	return &Service{repo: repo, logger: logger, audit: audit, now: time.Now}
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	return s.repo.ListInvoices(ctx, req)
}

func (s *Service) PaymentsByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentsByInvoice(ctx, invoiceID)
}

// CreateInvoiceFromOrder issues the invoice for an order. Idempotent by order
// id: if one already exists its id is returned and nothing is written. The
// invoice number is time-derived; uniqueness is guaranteed by the order_id
// check, not the number itself.
func (s *Service) CreateInvoiceFromOrder(ctx context.Context, orderID int64) (*Invoice, error) {
	if existing, err := s.repo.FindInvoiceByOrder(ctx, orderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("check invoice for order %d: %w", orderID, err)
	}

	customerID, total, err := s.repo.OrderBillingInfo(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}

	issued := s.now()
	inv := Invoice{
		Number:            fmt.Sprintf("INV-%s-%d", issued.Format("20060102150405"), orderID),
		OrderID:           orderID,
		CustomerID:        customerID,
		TotalAmount:       total,
		PaidAmount:        0,
		OutstandingAmount: total,
		PaymentStatus:     PaymentUnpaid,
		IssueDate:         issued,
		DueDate:           issued.Add(invoiceTerms),
	}

	id, wrote, err := s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("create invoice for order %d: %w", orderID, err)
	}

	created, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	// A lost race on the unique index hands back the winner's invoice; only
	// the writer appends the ledger entry.
	if !wrote {
		return created, nil
	}

	invoiceID := created.ID
	if _, err := s.repo.AppendLedgerEntry(ctx, LedgerEntry{
		CustomerID:  customerID,
		InvoiceID:   &invoiceID,
		EntryType:   EntryDebit,
		Amount:      total,
		Description: fmt.Sprintf("Invoice %s issued", created.Number),
		EntryDate:   issued,
	}); err != nil {
		// The sweep re-derives balances from the log; a missing issuance
		// entry is visible there, so log and keep the invoice.
		s.logger.Error("append issuance ledger entry", slog.Any("error", err), slog.Int64("invoice_id", invoiceID))
	}

	s.logger.Info("invoice created", "invoice_id", invoiceID, "order_id", orderID, "number", created.Number)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "invoice.create",
			Entity:   "invoice",
			EntityID: fmt.Sprintf("%d", invoiceID),
			Meta:     map[string]any{"order_id": orderID, "number": created.Number},
		})
	}
	return created, nil
}

// RecordPayment inserts a completed payment and recomputes the invoice's
// settlement from a fresh aggregate of all completed payments, propagates the
// derived status to the linked order, and appends a ledger credit.
func (s *Service) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*Payment, error) {
	if req.Amount <= 0 {
		return nil, shared.FieldErrors{"amount": "amount must be positive"}
	}
	method, err := ParsePaymentMethod(req.Method)
	if err != nil {
		return nil, shared.FieldErrors{"method": "unknown payment method"}
	}

	inv, err := s.repo.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	paymentDate := s.now()
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}

	paymentID, err := s.repo.InsertPayment(ctx, Payment{
		InvoiceID:   inv.ID,
		CustomerID:  inv.CustomerID,
		Amount:      req.Amount,
		Method:      method,
		Status:      StateCompleted,
		Reference:   req.Reference,
		Notes:       req.Notes,
		PaymentDate: paymentDate,
	})
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	if err := s.settleInvoice(ctx, inv); err != nil {
		return nil, err
	}

	// The ledger entry is dated at insertion, not at the payment date. A
	// backdated payment keeps its date on the payment row; the ledger stays
	// strictly append-ordered so every stored running_balance equals the
	// fold taken to that entry.
	if _, err := s.repo.AppendLedgerEntry(ctx, LedgerEntry{
		CustomerID:  inv.CustomerID,
		InvoiceID:   &inv.ID,
		PaymentID:   &paymentID,
		EntryType:   EntryPayment,
		Amount:      -req.Amount,
		Description: fmt.Sprintf("Payment against invoice %s", inv.Number),
		EntryDate:   s.now(),
	}); err != nil {
		return nil, fmt.Errorf("append payment ledger entry: %w", err)
	}

	s.logger.Info("payment recorded", "payment_id", paymentID, "invoice_id", inv.ID, "amount", req.Amount)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "payment.record",
			Entity:   "payment",
			EntityID: fmt.Sprintf("%d", paymentID),
			Meta:     map[string]any{"invoice_id": inv.ID, "amount": req.Amount},
		})
	}
	return s.repo.GetPayment(ctx, paymentID)
}

// settleInvoice recomputes paid/outstanding/payment_status for the invoice
// and propagates the status to its order.
func (s *Service) settleInvoice(ctx context.Context, inv *Invoice) error {
	paid, err := s.repo.SumCompletedPayments(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("sum payments for invoice %d: %w", inv.ID, err)
	}

	outstanding := inv.TotalAmount - paid
	status := DerivePaymentStatus(paid, inv.TotalAmount)
	if err := s.repo.UpdateInvoiceSettlement(ctx, inv.ID, paid, outstanding, status); err != nil {
		return fmt.Errorf("update invoice %d settlement: %w", inv.ID, err)
	}

	if inv.OrderID > 0 {
		if err := s.repo.PropagateOrderPaymentStatus(ctx, inv.OrderID, status); err != nil {
			return fmt.Errorf("propagate payment status to order %d: %w", inv.OrderID, err)
		}
	}
	return nil
}

// Ledger returns all of a customer's ledger entries in fold order.
func (s *Service) Ledger(ctx context.Context, customerID int64) ([]LedgerEntry, error) {
	return s.repo.LedgerEntriesForCustomer(ctx, customerID)
}

// Balance recomputes the customer balance from the entry log. The log is
// canonical; stored running balances are only a cache of this fold.
func (s *Service) Balance(ctx context.Context, customerID int64) (float64, error) {
	entries, err := s.repo.LedgerEntriesForCustomer(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return FoldBalance(entries), nil
}

// Reconcile is the periodic consistency sweep covering the accepted
// inconsistency windows: orders whose payment status drifted from their
// invoice, converted orders whose invoice never got created, and invoices
// past their due date.
func (s *Service) Reconcile(ctx context.Context) error {
	mismatched, err := s.repo.MismatchedOrders(ctx)
	if err != nil {
		return fmt.Errorf("find mismatched orders: %w", err)
	}
	for _, m := range mismatched {
		if err := s.repo.PropagateOrderPaymentStatus(ctx, m.OrderID, m.InvoiceStatus); err != nil {
			return fmt.Errorf("reconcile order %d: %w", m.OrderID, err)
		}
		s.logger.Info("order payment status reconciled", "order_id", m.OrderID, "status", m.InvoiceStatus)
	}

	missing, err := s.repo.OrdersWithoutInvoices(ctx)
	if err != nil {
		return fmt.Errorf("find orders without invoices: %w", err)
	}
	for _, orderID := range missing {
		if _, err := s.CreateInvoiceFromOrder(ctx, orderID); err != nil {
			s.logger.Error("create missing invoice", slog.Any("error", err), slog.Int64("order_id", orderID))
		}
	}

	overdue, err := s.repo.FlagOverdueInvoices(ctx, s.now())
	if err != nil {
		return fmt.Errorf("flag overdue invoices: %w", err)
	}
	for _, o := range overdue {
		if o.OrderID > 0 {
			if err := s.repo.PropagateOrderPaymentStatus(ctx, o.OrderID, PaymentOverdue); err != nil {
				return fmt.Errorf("propagate overdue to order %d: %w", o.OrderID, err)
			}
		}
		s.logger.Info("invoice flagged overdue", "invoice_id", o.ID)
	}
	return nil
}
