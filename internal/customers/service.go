package customers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// Service implements customer management use cases.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	return s.repo.List(ctx, req)
}

func (s *Service) Create(ctx context.Context, userID int64, req CreateCustomerRequest) (*Customer, error) {
	fields := shared.FieldErrors{}
	if strings.TrimSpace(req.Name) == "" {
		fields["name"] = "name is required"
	}
	if strings.TrimSpace(req.Email) == "" {
		fields["email"] = "email is required"
	}
	if strings.TrimSpace(req.Phone) == "" {
		fields["phone"] = "phone is required"
	}
	if len(fields) > 0 {
		return nil, fields
	}

	c := Customer{
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     strings.TrimSpace(req.Phone),
		Company:   req.Company,
		CreatedBy: userID,
	}
	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.logger.Info("customer created", "customer_id", id, "user_id", userID)
	return s.repo.Get(ctx, id)
}

// Update changes contact details only. Name and created_by are fixed after
// creation; requests carrying other fields are rejected at the DTO layer.
func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error) {
	updates := map[string]interface{}{}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" {
			return nil, shared.FieldErrors{"email": "email cannot be blank"}
		}
		updates["email"] = email
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone == "" {
			return nil, shared.FieldErrors{"phone": "phone cannot be blank"}
		}
		updates["phone"] = phone
	}
	if req.Company != nil {
		updates["company"] = req.Company
	}
	if len(updates) == 0 {
		return nil, shared.FieldErrors{"_": "no updatable fields supplied"}
	}

	if err := s.repo.UpdateContact(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a customer. Customers referenced by quotes cannot be
// removed; callers get ErrInvalidState and must archive instead.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	n, err := s.repo.CountQuotes(ctx, id)
	if err != nil {
		return fmt.Errorf("count quotes for customer %d: %w", id, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: customer has %d quote(s)", shared.ErrInvalidState, n)
	}
	return s.repo.Delete(ctx, id)
}
