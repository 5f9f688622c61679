package payments

import (
	"net/url"
	"strconv"
)

// RedirectFor maps a reconciliation outcome onto the browser destination.
func RedirectFor(outcome Outcome, tx *Transaction) string {
	switch outcome {
	case OutcomeSuccess, OutcomePending:
		flag := string(outcome)
		if tx == nil {
			return "/payment/" + flag
		}
		if ref, ok := tx.Document(); ok {
			return documentPath(ref) + "?payment=" + flag
		}
		return "/payment/" + flag + "?id=" + url.QueryEscape(tx.ID)
	case OutcomeFailed:
		if tx == nil {
			return "/payment/error?reason=payment_failed"
		}
		return "/payment/error?reason=payment_failed&id=" + url.QueryEscape(tx.ID)
	case OutcomeNotFound:
		return "/payment/error?reason=transaction_not_found"
	default:
		return "/payment/error?reason=server_error"
	}
}

func documentPath(ref DocumentRef) string {
	collection := "/invoices/"
	if ref.Kind == DocumentQuotation {
		collection = "/quotations/"
	}
	return collection + strconv.FormatInt(ref.ID, 10)
}
