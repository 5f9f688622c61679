package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-tours/internal/payments"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries payment follow-ups.
	QueueCritical = "critical"

	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskPaymentConfirmed notifies billing staff about a confirmed payment.
	TaskPaymentConfirmed = "payment:confirmed"
	// TaskRecheckPending re-verifies transactions whose callback never settled them.
	TaskRecheckPending = "payment:recheck_pending"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// PaymentConfirmedPayload is the snapshot of a transaction at confirmation.
type PaymentConfirmedPayload struct {
	TransactionID    string          `json:"transaction_id"`
	PaymentGatewayID string          `json:"payment_gateway_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	DocumentKind     string          `json:"document_kind,omitempty"`
	DocumentID       int64           `json:"document_id,omitempty"`
	ConfirmedAt      time.Time       `json:"confirmed_at"`
}

// PaymentConfirmedFrom builds the payload for a confirmed transaction.
func PaymentConfirmedFrom(tx payments.Transaction) PaymentConfirmedPayload {
	payload := PaymentConfirmedPayload{
		TransactionID:    tx.ID,
		PaymentGatewayID: tx.PaymentGatewayID,
		Amount:           tx.Amount,
		Currency:         tx.Currency,
		ConfirmedAt:      tx.UpdatedAt,
	}
	if tx.ConfirmedAt != nil {
		payload.ConfirmedAt = *tx.ConfirmedAt
	}
	if ref, ok := tx.Document(); ok {
		payload.DocumentKind = ref.Kind
		payload.DocumentID = ref.ID
	}
	return payload
}

// NewPaymentConfirmedTask constructs the notification task. The task id is
// derived from the transaction so a confirmation is announced once.
func NewPaymentConfirmedTask(payload PaymentConfirmedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentConfirmed, data,
		asynq.TaskID(TaskPaymentConfirmed+":"+payload.TransactionID),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(10),
	), nil
}

// RecheckPendingPayload overrides the sweep defaults when non-zero.
type RecheckPendingPayload struct {
	OlderThanSeconds int `json:"older_than_seconds,omitempty"`
	Limit            int `json:"limit,omitempty"`
}

// NewRecheckPendingTask constructs the sweep task.
func NewRecheckPendingTask(payload RecheckPendingPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecheckPending, data, asynq.Queue(QueueCritical), asynq.MaxRetry(0)), nil
}

// NewIdempotencyCleanupTask constructs the pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}
