package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-tours/internal/payments"
)

// PaymentSettler lets the payment reconciler settle documents.
type PaymentSettler struct {
	Service *Service
}

// SettleDocument implements payments.Settler. Cancelled and voided documents
// are reported as payments.ErrDocumentClosed.
func (p PaymentSettler) SettleDocument(ctx context.Context, ref payments.DocumentRef, paid decimal.Decimal) error {
	kind, err := ParseKind(ref.Kind)
	if err != nil {
		return err
	}
	_, err = p.Service.Settle(ctx, kind, ref.ID, paid)
	if errors.Is(err, ErrTerminalState) {
		return fmt.Errorf("%w: %w", payments.ErrDocumentClosed, err)
	}
	return err
}
