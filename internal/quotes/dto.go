package quotes

import "time"

type QuoteItemInput struct {
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

type QuoteServiceInput struct {
	Name string  `json:"name" validate:"required,max=200"`
	Rate float64 `json:"rate" validate:"gte=0"`
}

type CreateQuoteRequest struct {
	CustomerID      int64               `json:"customer_id" validate:"required,gt=0"`
	DeliveryAddress string              `json:"delivery_address" validate:"max=500"`
	DeliveryDate    *time.Time          `json:"delivery_date"`
	TransportCost   float64             `json:"transport_cost" validate:"gte=0"`
	Items           []QuoteItemInput    `json:"items" validate:"dive"`
	Services        []QuoteServiceInput `json:"services" validate:"dive"`
}

// UpdateQuoteRequest replaces the quote's editable contents wholesale. Items
// and services are provided as full collections, not deltas.
type UpdateQuoteRequest struct {
	DeliveryAddress *string             `json:"delivery_address,omitempty" validate:"omitempty,max=500"`
	DeliveryDate    *time.Time          `json:"delivery_date,omitempty"`
	TransportCost   *float64            `json:"transport_cost,omitempty" validate:"omitempty,gte=0"`
	Items           []QuoteItemInput    `json:"items,omitempty" validate:"omitempty,dive"`
	Services        []QuoteServiceInput `json:"services,omitempty" validate:"omitempty,dive"`
}

type RejectQuoteRequest struct {
	Reason string `json:"reason"`
}

type ListQuotesRequest struct {
	Status     string `json:"status"`
	CustomerID int64  `json:"customer_id"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}
