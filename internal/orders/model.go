package orders

import (
	"fmt"
	"time"

	"github.com/ironstone-erp/ironstone-erp/internal/billing"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// DeliveryStatus tracks fulfilment independently of payment.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryDispatched DeliveryStatus = "dispatched"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryCancelled  DeliveryStatus = "cancelled"
)

// ParseDeliveryStatus validates a raw delivery status string.
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	switch DeliveryStatus(s) {
	case DeliveryPending, DeliveryDispatched, DeliveryDelivered, DeliveryCancelled:
		return DeliveryStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown delivery status %q", shared.ErrValidation, s)
}

type Order struct {
	ID              int64                 `json:"id" db:"id"`
	QuoteID         int64                 `json:"quote_id" db:"quote_id"`
	CustomerID      int64                 `json:"customer_id" db:"customer_id"`
	DeliveryAddress string                `json:"delivery_address" db:"delivery_address"`
	DeliveryDate    *time.Time            `json:"delivery_date" db:"delivery_date"`
	TotalAmount     float64               `json:"total_amount" db:"total_amount"`
	DeliveryStatus  DeliveryStatus        `json:"delivery_status" db:"delivery_status"`
	PaymentStatus   billing.PaymentStatus `json:"payment_status" db:"payment_status"`
	CreatedBy       int64                 `json:"created_by" db:"created_by"`
	CreatedAt       time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at" db:"updated_at"`

	Notes []OrderNote `json:"notes,omitempty" db:"-"`
}

// OrderNote is one append-only annotation on an order. Notes are never
// replaced; every status update adds a new timestamped row.
type OrderNote struct {
	ID        int64     `json:"id" db:"id"`
	OrderID   int64     `json:"order_id" db:"order_id"`
	Note      string    `json:"note" db:"note"`
	CreatedBy int64     `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
