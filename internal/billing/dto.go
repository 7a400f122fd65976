package billing

import "time"

type CreateInvoiceRequest struct {
	OrderID int64 `json:"order_id" validate:"required,gt=0"`
}

type RecordPaymentRequest struct {
	InvoiceID   int64      `json:"invoice_id" validate:"required,gt=0"`
	Amount      float64    `json:"amount" validate:"required,gt=0"`
	Method      string     `json:"method" validate:"required"`
	Reference   *string    `json:"reference,omitempty" validate:"omitempty,max=100"`
	Notes       *string    `json:"notes,omitempty" validate:"omitempty,max=1000"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`
}

type ListInvoicesRequest struct {
	CustomerID    int64  `json:"customer_id"`
	PaymentStatus string `json:"payment_status"`
	Limit         int    `json:"limit"`
	Offset        int    `json:"offset"`
}
