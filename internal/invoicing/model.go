// Package invoicing manages invoices and quotations: number issuance on
// creation and the status state machine.
package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-tours/internal/numbering"
)

// Kind distinguishes the two structurally identical document families.
type Kind string

const (
	KindInvoice   Kind = "INVOICE"
	KindQuotation Kind = "QUOTATION"
)

// ParseKind accepts the kind name or its URL collection segment.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "invoice", "invoices":
		return KindInvoice, nil
	case "quotation", "quotations":
		return KindQuotation, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindInvoice || k == KindQuotation
}

// DocumentType maps the kind onto its numbering sequence.
func (k Kind) DocumentType() numbering.DocumentType {
	return numbering.DocumentType(k)
}

// Collection is the plural path segment, also the backing table name.
func (k Kind) Collection() string {
	if k == KindQuotation {
		return "quotations"
	}
	return "invoices"
}

// Document is an invoice or a quotation.
type Document struct {
	ID            int64           `json:"id"`
	Kind          Kind            `json:"kind"`
	Number        string          `json:"number"`
	CustomerID    int64           `json:"customer_id"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Status        Status          `json:"status"`
	Notes         *string         `json:"notes,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason  *string         `json:"cancel_reason,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	UpdatedBy     int64           `json:"updated_by"`
	UpdatedByName string          `json:"updated_by_name"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StatusChange is the write applied by a transition or a settlement.
type StatusChange struct {
	Status       Status
	ActorID      int64
	ActorName    string
	At           time.Time
	CancelledAt  *time.Time
	CancelReason *string
}

func (d *Document) apply(change StatusChange) {
	d.Status = change.Status
	d.UpdatedAt = change.At
	d.UpdatedBy = change.ActorID
	d.UpdatedByName = change.ActorName
	if change.CancelledAt != nil {
		d.CancelledAt = change.CancelledAt
		d.CancelReason = change.CancelReason
	}
}
