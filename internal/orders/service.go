package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ironstone-erp/ironstone-erp/internal/billing"
	"github.com/ironstone-erp/ironstone-erp/internal/platform/db"
	"github.com/ironstone-erp/ironstone-erp/internal/quotes"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// QuoteStore is the slice of the quote service the converter needs.
type QuoteStore interface {
	Get(ctx context.Context, id int64) (*quotes.Quote, error)
	MarkOrdered(ctx context.Context, id int64) error
}

// InvoiceDispatcher hands invoice creation to the background worker. The
// converter records the intent and returns; the worker owns retries.
type InvoiceDispatcher interface {
	DispatchInvoiceCreate(ctx context.Context, orderID int64) error
}

// AuditPort records conversion and delivery transitions. Nil disables auditing.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements order management and the quote-to-order conversion.
type Service struct {
	repo       Repository
	quoteStore QuoteStore
	dispatcher InvoiceDispatcher
	logger     *slog.Logger
	audit      AuditPort
}

// NewService constructs a Service.
func NewService(repo Repository, quoteStore QuoteStore, dispatcher InvoiceDispatcher, logger *slog.Logger, audit AuditPort) *Service {
	return &Service{repo: repo, quoteStore: quoteStore, dispatcher: dispatcher, logger: logger, audit: audit}
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	if req.DeliveryStatus != "" {
		if _, err := ParseDeliveryStatus(req.DeliveryStatus); err != nil {
			return nil, 0, err
		}
	}
	if req.PaymentStatus != "" {
		if _, err := billing.ParsePaymentStatus(req.PaymentStatus); err != nil {
			return nil, 0, err
		}
	}
	return s.repo.List(ctx, req)
}

// Convert turns an approved quote into an order. The order copies the
// quote's customer, delivery details and total; the quote moves to ordered;
// invoice creation is queued for the worker. A permission denial from the
// store on the order insert is retried exactly once after re-binding the
// caller's identity; a second denial is fatal.
func (s *Service) Convert(ctx context.Context, userID int64, req ConvertQuoteRequest) (*Order, error) {
	q, err := s.quoteStore.Get(ctx, req.QuoteID)
	if err != nil {
		return nil, err
	}
	if q.Status != quotes.StatusApproved {
		return nil, fmt.Errorf("%w: quote %d is %s, only approved quotes convert to orders", shared.ErrInvalidState, q.ID, q.Status)
	}

	order := Order{
		QuoteID:         q.ID,
		CustomerID:      q.CustomerID,
		DeliveryAddress: q.DeliveryAddress,
		DeliveryDate:    q.DeliveryDate,
		TotalAmount:     q.TotalAmount,
		DeliveryStatus:  DeliveryPending,
		PaymentStatus:   billing.PaymentUnpaid,
		CreatedBy:       userID,
	}
	note := strings.TrimSpace(req.Notes)

	orderID, err := s.repo.Insert(ctx, userID, order, note)
	if db.IsPermissionDenied(err) {
		s.logger.Warn("order insert denied, retrying once", slog.Int64("quote_id", q.ID), slog.Int64("user_id", userID))
		orderID, err = s.repo.Insert(ctx, userID, order, note)
		if db.IsPermissionDenied(err) {
			return nil, fmt.Errorf("%w: user %d may not create orders for customer %d", shared.ErrPermissionDenied, userID, q.CustomerID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create order from quote %d: %w", q.ID, err)
	}

	if err := s.quoteStore.MarkOrdered(ctx, q.ID); err != nil {
		// The order exists; leaving the quote approved is the documented
		// conversion gap and the sweep surfaces it. Do not fail the caller.
		s.logger.Error("mark quote ordered", slog.Any("error", err), slog.Int64("quote_id", q.ID), slog.Int64("order_id", orderID))
	}

	if err := s.dispatcher.DispatchInvoiceCreate(ctx, orderID); err != nil {
		// Best effort relative to order creation. The reconciliation sweep
		// creates invoices missing for converted orders.
		s.logger.Error("enqueue invoice creation", slog.Any("error", err), slog.Int64("order_id", orderID))
	}

	s.logger.Info("quote converted to order", "quote_id", q.ID, "order_id", orderID, "user_id", userID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  userID,
			Action:   "order.convert",
			Entity:   "order",
			EntityID: fmt.Sprintf("%d", orderID),
			Meta:     map[string]any{"quote_id": q.ID},
		})
	}
	return s.repo.Get(ctx, orderID)
}

// UpdateDeliveryStatus moves the order's fulfilment state and appends a note
// recording the change. Notes accumulate; nothing is overwritten.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, id, userID int64, req UpdateDeliveryStatusRequest) (*Order, error) {
	status, err := ParseDeliveryStatus(req.Status)
	if err != nil {
		return nil, shared.FieldErrors{"status": "unknown delivery status"}
	}

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.DeliveryStatus == DeliveryCancelled {
		return nil, fmt.Errorf("%w: order %d is cancelled", shared.ErrInvalidState, id)
	}

	if err := s.repo.UpdateDeliveryStatus(ctx, id, status); err != nil {
		return nil, err
	}

	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = fmt.Sprintf("Delivery status changed from %s to %s", o.DeliveryStatus, status)
	}
	if err := s.repo.AppendNote(ctx, id, note, userID); err != nil {
		return nil, fmt.Errorf("append order note: %w", err)
	}

	s.logger.Info("order delivery status updated", "order_id", id, "status", status)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  userID,
			Action:   "order.delivery_status",
			Entity:   "order",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"from": string(o.DeliveryStatus), "to": string(status)},
		})
	}
	return s.repo.Get(ctx, id)
}

// AddNote appends a free-text note to the order.
func (s *Service) AddNote(ctx context.Context, id, userID int64, note string) (*Order, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, shared.FieldErrors{"note": "note cannot be empty"}
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.AppendNote(ctx, id, note, userID); err != nil {
		return nil, fmt.Errorf("append order note: %w", err)
	}
	return s.repo.Get(ctx, id)
}
