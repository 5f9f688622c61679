package shared

// Billing permissions gate invoices, quotations and payments.
const (
	PermInvoiceView   = "billing.invoice.view"
	PermInvoiceCreate = "billing.invoice.create"
	PermInvoiceStatus = "billing.invoice.status"

	PermQuotationView   = "billing.quotation.view"
	PermQuotationCreate = "billing.quotation.create"
	PermQuotationStatus = "billing.quotation.status"

	PermPaymentInitiate = "billing.payment.initiate"
)

// BillingScopes lists all billing permissions.
func BillingScopes() []string {
	return []string{
		PermInvoiceView,
		PermInvoiceCreate,
		PermInvoiceStatus,
		PermQuotationView,
		PermQuotationCreate,
		PermQuotationStatus,
		PermPaymentInitiate,
	}
}
