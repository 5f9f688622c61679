package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedirectFor(t *testing.T) {
	bare := &Transaction{ID: "T1"}
	quote := &Transaction{ID: "T2", QuotationID: int64Ptr(7)}
	invoice := &Transaction{ID: "T3", InvoiceID: int64Ptr(8)}
	both := &Transaction{ID: "T4", QuotationID: int64Ptr(5), InvoiceID: int64Ptr(6)}

	cases := []struct {
		name    string
		outcome Outcome
		tx      *Transaction
		want    string
	}{
		{"success quotation", OutcomeSuccess, quote, "/quotations/7?payment=success"},
		{"success invoice", OutcomeSuccess, invoice, "/invoices/8?payment=success"},
		{"success quotation wins", OutcomeSuccess, both, "/quotations/5?payment=success"},
		{"success generic", OutcomeSuccess, bare, "/payment/success?id=T1"},
		{"pending quotation", OutcomePending, quote, "/quotations/7?payment=pending"},
		{"pending invoice", OutcomePending, invoice, "/invoices/8?payment=pending"},
		{"pending generic", OutcomePending, bare, "/payment/pending?id=T1"},
		{"failed", OutcomeFailed, quote, "/payment/error?reason=payment_failed&id=T2"},
		{"not found", OutcomeNotFound, nil, "/payment/error?reason=transaction_not_found"},
		{"server error", OutcomeServerError, quote, "/payment/error?reason=server_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RedirectFor(tc.outcome, tc.tx))
		})
	}
}

func TestRedirectForEscapesID(t *testing.T) {
	assert.Equal(t, "/payment/success?id=a+b%26c", RedirectFor(OutcomeSuccess, &Transaction{ID: "a b&c"}))
}
