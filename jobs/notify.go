package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	jobmetrics "github.com/odyssey-erp/odyssey-tours/internal/jobs"
	"github.com/odyssey-erp/odyssey-tours/internal/payments"
)

const (
	subjectPaymentConfirmed = "Payment received for %s"
	bodyPaymentConfirmed    = "Payment %s of %s was confirmed at %s."
	invoiceLabel            = "invoice #%d"
	quotationLabel          = "quotation #%d"
	unlinkedLabel           = "transaction %s"
)

func init() {
	id := language.Indonesian
	_ = message.SetString(id, subjectPaymentConfirmed, "Pembayaran diterima untuk %s")
	_ = message.SetString(id, bodyPaymentConfirmed, "Pembayaran %s sebesar %s dikonfirmasi pada %s.")
	_ = message.SetString(id, invoiceLabel, "faktur #%d")
	_ = message.SetString(id, quotationLabel, "penawaran #%d")
	_ = message.SetString(id, unlinkedLabel, "transaksi %s")
}

// NotificationHandler turns billing events into emails.
type NotificationHandler struct {
	Mailer    Mailer
	Recipient string
	Language  language.Tag
	Metrics   *jobmetrics.Metrics
	Logger    *slog.Logger
}

// HandleSendEmail processes TaskTypeSendEmail tasks.
func (h *NotificationHandler) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	tracker := h.Metrics.Track(TaskTypeSendEmail)
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry))
	}
	return tracker.End(h.Mailer.Send(ctx, payload))
}

// HandlePaymentConfirmed emails the billing mailbox about a confirmation.
func (h *NotificationHandler) HandlePaymentConfirmed(ctx context.Context, t *asynq.Task) error {
	tracker := h.Metrics.Track(TaskPaymentConfirmed)
	var payload PaymentConfirmedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry))
	}
	msg := h.ComposePaymentConfirmed(payload)
	if err := h.Mailer.Send(ctx, msg); err != nil {
		h.Logger.Warn("payment confirmation email failed",
			slog.String("transaction_id", payload.TransactionID),
			slog.Any("error", err),
		)
		return tracker.End(err)
	}
	h.Logger.Info("payment confirmation email sent", slog.String("transaction_id", payload.TransactionID))
	return tracker.End(nil)
}

// ComposePaymentConfirmed renders the email in the configured language.
func (h *NotificationHandler) ComposePaymentConfirmed(payload PaymentConfirmedPayload) SendEmailPayload {
	p := message.NewPrinter(h.Language)
	var subject string
	switch payload.DocumentKind {
	case payments.DocumentInvoice:
		subject = p.Sprintf(invoiceLabel, payload.DocumentID)
	case payments.DocumentQuotation:
		subject = p.Sprintf(quotationLabel, payload.DocumentID)
	default:
		subject = p.Sprintf(unlinkedLabel, payload.TransactionID)
	}
	when := payload.ConfirmedAt.UTC().Format("2006-01-02 15:04 UTC")
	return SendEmailPayload{
		To:      h.Recipient,
		Subject: p.Sprintf(subjectPaymentConfirmed, subject),
		Body:    p.Sprintf(bodyPaymentConfirmed, payload.PaymentGatewayID, FormatAmount(h.Language, payload.Currency, payload.Amount), when),
	}
}

// FormatAmount renders an amount with locale grouping and two decimals,
// prefixed by the ISO currency code. Whole units and cents are formatted as
// integers so the amount never passes through a float.
func FormatAmount(tag language.Tag, currency string, amount decimal.Decimal) string {
	formatted := formatMoney(message.NewPrinter(tag), amount)
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return formatted
	}
	return code + " " + formatted
}

func formatMoney(p *message.Printer, amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	wholePart, centsPart, _ := strings.Cut(fixed, ".")
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		return sign + fixed
	}
	cents, err := strconv.ParseInt(centsPart, 10, 64)
	if err != nil {
		return sign + fixed
	}

	// Scale(2) yields the locale's decimal separator followed by two zeros,
	// which are swapped for the real cents.
	grouped := []rune(p.Sprintf("%v", number.Decimal(whole, number.Scale(2))))
	if len(grouped) < 2 {
		return sign + fixed
	}
	fraction := p.Sprintf("%v", number.Decimal(cents, number.MinIntegerDigits(2), number.NoSeparator()))
	return sign + string(grouped[:len(grouped)-2]) + fraction
}
