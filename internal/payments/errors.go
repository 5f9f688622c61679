package payments

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrVerifierFault covers any failed verifier call other than a timeout.
	ErrVerifierFault = errors.New("payment verifier fault")
	// ErrVerifierTimeout is inconclusive: the payment may have succeeded upstream.
	ErrVerifierTimeout  = errors.New("payment verifier timed out")
	ErrDuplicateGateway = errors.New("payment gateway id already recorded")
	ErrInvalidAmount    = errors.New("invalid payment amount")
	ErrMissingDocument  = errors.New("payment must reference a quotation or an invoice")
	// ErrDocumentClosed is returned by a Settler when the document no longer
	// accepts payments. Settlement is then finished; nothing will change it.
	ErrDocumentClosed = errors.New("document no longer accepts payments")
)
