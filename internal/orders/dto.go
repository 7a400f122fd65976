package orders

type ConvertQuoteRequest struct {
	QuoteID int64  `json:"quote_id" validate:"required,gt=0"`
	Notes   string `json:"notes" validate:"max=1000"`
}

type UpdateDeliveryStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=1000"`
}

type AddNoteRequest struct {
	Note string `json:"note" validate:"required,max=1000"`
}

type ListOrdersRequest struct {
	CustomerID     int64  `json:"customer_id"`
	DeliveryStatus string `json:"delivery_status"`
	PaymentStatus  string `json:"payment_status"`
	Limit          int    `json:"limit"`
	Offset         int    `json:"offset"`
}
