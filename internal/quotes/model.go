package quotes

import (
	"fmt"
	"time"

	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// QuoteStatus is the lifecycle state of a quote.
type QuoteStatus string

const (
	StatusDraft    QuoteStatus = "draft"
	StatusPending  QuoteStatus = "pending"
	StatusApproved QuoteStatus = "approved"
	StatusRejected QuoteStatus = "rejected"
	StatusOrdered  QuoteStatus = "ordered"
)

// ParseQuoteStatus validates a raw status string at the data-model boundary.
func ParseQuoteStatus(s string) (QuoteStatus, error) {
	switch QuoteStatus(s) {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusOrdered:
		return QuoteStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown quote status %q", shared.ErrValidation, s)
}

// transitions enumerates the allowed state machine edges. Ordered is terminal
// and reachable only from approved; any state may be reset to draft through
// the explicit override, which is handled separately.
var transitions = map[QuoteStatus][]QuoteStatus{
	StatusDraft:    {StatusPending},
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusOrdered},
	StatusRejected: {StatusPending, StatusDraft},
	StatusOrdered:  {},
}

// CanTransition reports whether moving from one status to another is a legal
// state machine edge.
func CanTransition(from, to QuoteStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Editable reports whether the quote's contents may still be changed.
// Approval freezes the quote; only status-change actions remain.
func (s QuoteStatus) Editable() bool {
	return s == StatusDraft || s == StatusPending || s == StatusRejected
}

type Quote struct {
	ID              int64       `json:"id" db:"id"`
	CustomerID      int64       `json:"customer_id" db:"customer_id"`
	DeliveryAddress string      `json:"delivery_address" db:"delivery_address"`
	DeliveryDate    *time.Time  `json:"delivery_date" db:"delivery_date"`
	TransportCost   float64     `json:"transport_cost" db:"transport_cost"`
	TotalAmount     float64     `json:"total_amount" db:"total_amount"`
	Status          QuoteStatus `json:"status" db:"status"`
	RejectionReason *string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedBy       int64       `json:"created_by" db:"created_by"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`

	Items    []QuoteItem    `json:"items,omitempty" db:"-"`
	Services []QuoteService `json:"services,omitempty" db:"-"`
}

type QuoteItem struct {
	ID          int64   `json:"id" db:"id"`
	QuoteID     int64   `json:"quote_id" db:"quote_id"`
	Description string  `json:"description" db:"description"`
	Quantity    float64 `json:"quantity" db:"quantity"`
	UnitPrice   float64 `json:"unit_price" db:"unit_price"`
	LineTotal   float64 `json:"line_total" db:"line_total"`
}

type QuoteService struct {
	ID      int64   `json:"id" db:"id"`
	QuoteID int64   `json:"quote_id" db:"quote_id"`
	Name    string  `json:"name" db:"name"`
	Rate    float64 `json:"rate" db:"rate"`
}
