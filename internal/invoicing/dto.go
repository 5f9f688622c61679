package invoicing

import "github.com/shopspring/decimal"

// CreateRequest opens a new DRAFT document.
type CreateRequest struct {
	CustomerID int64           `json:"customer_id" validate:"required,gt=0"`
	Currency   string          `json:"currency" validate:"required,len=3,uppercase"`
	Amount     decimal.Decimal `json:"amount"`
	Tax        decimal.Decimal `json:"tax"`
	Notes      *string         `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// TransitionRequest is the body of a status update. Status is checked by
// ParseStatus so every unknown value, empty included, is an invalid status.
type TransitionRequest struct {
	Status string  `json:"status"`
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// NumberPreview answers the next-number endpoint.
type NumberPreview struct {
	Kind   Kind   `json:"kind"`
	Number string `json:"number"`
}
