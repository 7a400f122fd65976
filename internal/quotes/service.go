package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// AuditPort records status transitions. A nil port disables auditing.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the quote lifecycle.
type Service struct {
	repo   Repository
	logger *slog.Logger
	audit  AuditPort
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger, audit AuditPort) *Service {
	return &Service{repo: repo, logger: logger, audit: audit}
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "quote",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}

// Get returns a quote with its lines. The total is recomputed from the lines
// on every read; a persisted total that drifted is repaired in passing.
func (s *Service) Get(ctx context.Context, id int64) (*Quote, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	computed := ComputeTotal(q.Items, q.Services, q.TransportCost)
	if computed != q.TotalAmount {
		s.logger.Warn("quote total drift repaired",
			slog.Int64("quote_id", q.ID),
			slog.Float64("stored", q.TotalAmount),
			slog.Float64("computed", computed))
		if err := s.repo.SetTotal(ctx, q.ID, computed); err != nil {
			return nil, fmt.Errorf("repair quote total: %w", err)
		}
		q.TotalAmount = computed
	}
	return q, nil
}

func (s *Service) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	if req.Status != "" {
		if _, err := ParseQuoteStatus(req.Status); err != nil {
			return nil, 0, err
		}
	}
	return s.repo.List(ctx, req)
}

func (s *Service) Create(ctx context.Context, userID int64, req CreateQuoteRequest) (*Quote, error) {
	if req.CustomerID <= 0 {
		return nil, shared.FieldErrors{"customer_id": "customer is required"}
	}

	q := Quote{
		CustomerID:      req.CustomerID,
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		DeliveryDate:    req.DeliveryDate,
		TransportCost:   req.TransportCost,
		Status:          StatusDraft,
		CreatedBy:       userID,
		Items:           buildItems(req.Items),
		Services:        buildServices(req.Services),
	}
	q.TotalAmount = ComputeTotal(q.Items, q.Services, q.TransportCost)

	id, err := s.repo.Create(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}
	s.logger.Info("quote created", "quote_id", id, "customer_id", req.CustomerID, "user_id", userID)
	return s.Get(ctx, id)
}

// Update replaces the editable contents of a quote. Quotes at approved or
// later cannot be edited.
func (s *Service) Update(ctx context.Context, id int64, req UpdateQuoteRequest) (*Quote, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !q.Status.Editable() {
		return nil, fmt.Errorf("%w: quote %d is %s and cannot be edited", shared.ErrInvalidState, id, q.Status)
	}

	if req.DeliveryAddress != nil {
		q.DeliveryAddress = strings.TrimSpace(*req.DeliveryAddress)
	}
	if req.DeliveryDate != nil {
		q.DeliveryDate = req.DeliveryDate
	}
	if req.TransportCost != nil {
		q.TransportCost = *req.TransportCost
	}
	if req.Items != nil {
		q.Items = buildItems(req.Items)
	}
	if req.Services != nil {
		q.Services = buildServices(req.Services)
	}
	q.TotalAmount = ComputeTotal(q.Items, q.Services, q.TransportCost)

	if err := s.repo.Replace(ctx, *q); err != nil {
		return nil, fmt.Errorf("update quote %d: %w", id, err)
	}
	return s.Get(ctx, id)
}

// Delete removes a draft, pending or rejected quote together with its lines.
func (s *Service) Delete(ctx context.Context, id int64) error {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !q.Status.Editable() {
		return fmt.Errorf("%w: quote %d is %s and cannot be deleted", shared.ErrInvalidState, id, q.Status)
	}
	return s.repo.Delete(ctx, id)
}

// Submit moves a draft or rejected quote to pending. The submission guard
// checks all required fields together and reports every violation in one
// per-field map; nothing is written unless the guard passes.
func (s *Service) Submit(ctx context.Context, id int64) (*Quote, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(q.Status, StatusPending) {
		return nil, fmt.Errorf("%w: quote %d cannot be submitted from %s", shared.ErrInvalidState, id, q.Status)
	}

	fields := shared.FieldErrors{}
	if q.CustomerID <= 0 {
		fields["customer_id"] = "a customer must be selected"
	}
	if len(q.Items) == 0 {
		fields["items"] = "at least one item is required"
	}
	if strings.TrimSpace(q.DeliveryAddress) == "" {
		fields["delivery_address"] = "delivery address is required"
	}
	if q.DeliveryDate == nil {
		fields["delivery_date"] = "delivery date is required"
	}
	if len(fields) > 0 {
		return nil, fields
	}

	if err := s.repo.SetStatus(ctx, id, q.Status, StatusPending, nil); err != nil {
		return nil, err
	}
	s.logger.Info("quote submitted", "quote_id", id)
	s.recordAudit(ctx, "quote.submit", id, nil)
	return s.Get(ctx, id)
}

// Approve moves a pending quote to approved.
func (s *Service) Approve(ctx context.Context, id int64) (*Quote, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(q.Status, StatusApproved) {
		return nil, fmt.Errorf("%w: quote %d cannot be approved from %s", shared.ErrInvalidState, id, q.Status)
	}
	if err := s.repo.SetStatus(ctx, id, q.Status, StatusApproved, nil); err != nil {
		return nil, err
	}
	s.logger.Info("quote approved", "quote_id", id)
	s.recordAudit(ctx, "quote.approve", id, nil)
	return s.Get(ctx, id)
}

// Reject moves a pending quote to rejected. A non-empty reason is required
// and persisted with the status; without one the quote stays pending.
func (s *Service) Reject(ctx context.Context, id int64, reason string) (*Quote, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.FieldErrors{"reason": "a rejection reason is required"}
	}

	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(q.Status, StatusRejected) {
		return nil, fmt.Errorf("%w: quote %d cannot be rejected from %s", shared.ErrInvalidState, id, q.Status)
	}
	if err := s.repo.SetStatus(ctx, id, q.Status, StatusRejected, &reason); err != nil {
		return nil, err
	}
	s.logger.Info("quote rejected", "quote_id", id)
	s.recordAudit(ctx, "quote.reject", id, map[string]any{"reason": reason})
	return s.Get(ctx, id)
}

// ResetToDraft is the explicit override returning a quote to draft. Ordered
// quotes are immutable and stay ordered.
func (s *Service) ResetToDraft(ctx context.Context, id int64) (*Quote, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status == StatusOrdered {
		return nil, fmt.Errorf("%w: quote %d is ordered and cannot return to draft", shared.ErrInvalidState, id)
	}
	if q.Status == StatusDraft {
		return q, nil
	}
	if err := s.repo.SetStatus(ctx, id, q.Status, StatusDraft, nil); err != nil {
		return nil, err
	}
	s.logger.Info("quote reset to draft", "quote_id", id)
	s.recordAudit(ctx, "quote.reset_to_draft", id, map[string]any{"from": string(q.Status)})
	return s.Get(ctx, id)
}

// MarkOrdered is called by the order converter, never from a user action.
// Only an approved quote can become ordered.
func (s *Service) MarkOrdered(ctx context.Context, id int64) error {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(q.Status, StatusOrdered) {
		return fmt.Errorf("%w: quote %d cannot be ordered from %s", shared.ErrInvalidState, id, q.Status)
	}
	return s.repo.SetStatus(ctx, id, q.Status, StatusOrdered, nil)
}

func buildItems(inputs []QuoteItemInput) []QuoteItem {
	items := make([]QuoteItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, QuoteItem{
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			LineTotal:   LineTotal(in.Quantity, in.UnitPrice),
		})
	}
	return items
}

func buildServices(inputs []QuoteServiceInput) []QuoteService {
	services := make([]QuoteService, 0, len(inputs))
	for _, in := range inputs {
		services = append(services, QuoteService{
			Name: strings.TrimSpace(in.Name),
			Rate: in.Rate,
		})
	}
	return services
}
