package customers

type CreateCustomerRequest struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Email   string  `json:"email" validate:"required,email"`
	Phone   string  `json:"phone" validate:"required,max=40"`
	Company *string `json:"company,omitempty" validate:"omitempty,max=200"`
}

// UpdateCustomerRequest edits contact fields only. Identity is immutable once
// quotes or orders reference the customer.
type UpdateCustomerRequest struct {
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Company *string `json:"company,omitempty" validate:"omitempty,max=200"`
}

type ListCustomersRequest struct {
	Search     string `json:"search"`
	CustomerID int64  `json:"customer_id"` // non-zero restricts to a single customer (scoped callers)
	Limit      int    `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int    `json:"offset" validate:"gte=0"`
}
