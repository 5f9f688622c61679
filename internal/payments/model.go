// Package payments records payment attempts against invoices and quotations
// and reconciles gateway callbacks with them.
package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payment attempt. PENDING is the only
// non-terminal state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Document kinds a transaction may point back to.
const (
	DocumentInvoice   = "INVOICE"
	DocumentQuotation = "QUOTATION"
)

// DocumentRef points at the invoice or quotation a transaction pays for.
type DocumentRef struct {
	Kind string
	ID   int64
}

// Transaction is one payment attempt (customer_transactions).
type Transaction struct {
	ID                   string          `json:"id"`
	PaymentGatewayID     string          `json:"payment_gateway_id"`
	Status               Status          `json:"status"`
	PaymentGatewayStatus string          `json:"payment_gateway_status,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	QuotationID          *int64          `json:"quotation_id,omitempty"`
	InvoiceID            *int64          `json:"invoice_id,omitempty"`
	Note                 *string         `json:"note,omitempty"`
	ConfirmedAt          *time.Time      `json:"confirmed_at,omitempty"`
	SettledAt            *time.Time      `json:"settled_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Document returns the owning document. A quotation link wins over an
// invoice link.
func (t Transaction) Document() (DocumentRef, bool) {
	switch {
	case t.QuotationID != nil:
		return DocumentRef{Kind: DocumentQuotation, ID: *t.QuotationID}, true
	case t.InvoiceID != nil:
		return DocumentRef{Kind: DocumentInvoice, ID: *t.InvoiceID}, true
	}
	return DocumentRef{}, false
}

// VerifiedStatus is the authoritative result reported by the verifier.
type VerifiedStatus string

const (
	VerifiedSuccessful VerifiedStatus = "SUCCESSFUL"
	VerifiedPending    VerifiedStatus = "PENDING"
	VerifiedFailed     VerifiedStatus = "FAILED"
)

// Verification is what the external verifier knows about a payment.
type Verification struct {
	Status         VerifiedStatus
	ProviderStatus string
	PaidAt         *time.Time
	Reason         string
}

// Outcome classifies a reconciliation for redirect purposes.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomePending     Outcome = "pending"
	OutcomeFailed      Outcome = "failed"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeServerError Outcome = "server_error"
)

// Callback is an inbound gateway notification.
type Callback struct {
	GatewayID string
	Mock      bool
}

// Result is the reconciler's answer for one callback.
type Result struct {
	Outcome     Outcome
	RedirectURL string
	Transaction *Transaction
}

// InitiateRequest records a new pending payment attempt.
type InitiateRequest struct {
	PaymentGatewayID string          `json:"payment_gateway_id" validate:"required,max=128"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency" validate:"required,len=3,uppercase"`
	QuotationID      *int64          `json:"quotation_id,omitempty" validate:"omitempty,gt=0"`
	InvoiceID        *int64          `json:"invoice_id,omitempty" validate:"omitempty,gt=0"`
}
