package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-tours/internal/shared"
)

// KeyClaimer deduplicates client requests by idempotency key.
// *shared.IdempotencyStore satisfies it.
type KeyClaimer interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const initiateModule = "payments.initiate"

// Service covers transaction bookkeeping around the reconciler.
type Service struct {
	repo       Repository
	reconciler *Reconciler
	keys       KeyClaimer
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds the service. keys may be nil to disable deduplication.
func NewService(repo Repository, reconciler *Reconciler, keys KeyClaimer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, reconciler: reconciler, keys: keys, logger: logger, now: time.Now}
}

// amountScale matches customer_transactions.amount NUMERIC(18, 2).
const amountScale = 2

// Reconcile forwards to the reconciler.
func (s *Service) Reconcile(ctx context.Context, cb Callback) Result {
	return s.reconciler.Reconcile(ctx, cb)
}

// Initiate records a PENDING transaction once the provider has handed out a
// gateway id. A non-empty idempotencyKey makes retries of the same request
// fail with ErrDuplicateGateway instead of creating a second row.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest, idempotencyKey string) (*Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if !req.Amount.Equal(req.Amount.Truncate(amountScale)) {
		return nil, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, amountScale)
	}
	if req.QuotationID == nil && req.InvoiceID == nil {
		return nil, ErrMissingDocument
	}

	if idempotencyKey != "" && s.keys != nil {
		if err := s.keys.CheckAndInsert(ctx, idempotencyKey, initiateModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, fmt.Errorf("%w: idempotency key %s already used", ErrDuplicateGateway, idempotencyKey)
			}
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
	}

	now := s.now()
	tx, err := s.repo.Insert(ctx, Transaction{
		ID:               uuid.NewString(),
		PaymentGatewayID: req.PaymentGatewayID,
		Status:           StatusPending,
		Amount:           req.Amount,
		Currency:         req.Currency,
		QuotationID:      req.QuotationID,
		InvoiceID:        req.InvoiceID,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		if idempotencyKey != "" && s.keys != nil && !errors.Is(err, ErrDuplicateGateway) {
			if delErr := s.keys.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return nil, err
	}
	return tx, nil
}

// ListByDocument returns all attempts recorded against a document, newest first.
func (s *Service) ListByDocument(ctx context.Context, ref DocumentRef) ([]Transaction, error) {
	return s.repo.ListByDocument(ctx, ref)
}

// RecheckSummary counts the outcomes of one recheck sweep.
type RecheckSummary struct {
	Checked   int
	Outcomes  map[Outcome]int
	Resettled int
}

// RecheckPending re-runs reconciliation for transactions that stayed PENDING
// longer than olderThan, for callbacks that never arrived or timed out. It
// then retries settlement for confirmed transactions not yet settled.
func (s *Service) RecheckPending(ctx context.Context, olderThan time.Duration, limit int) (RecheckSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	stale, err := s.repo.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return RecheckSummary{}, err
	}
	summary := RecheckSummary{Outcomes: make(map[Outcome]int)}
	for _, tx := range stale {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res := s.reconciler.Reconcile(ctx, Callback{GatewayID: tx.PaymentGatewayID})
		summary.Checked++
		summary.Outcomes[res.Outcome]++
	}

	unsettled, err := s.repo.ListUnsettled(ctx, limit)
	if err != nil {
		return summary, err
	}
	for _, tx := range unsettled {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := s.reconciler.Resettle(ctx, tx); err == nil {
			summary.Resettled++
		}
	}

	if summary.Checked > 0 || len(unsettled) > 0 {
		s.logger.Info("rechecked pending payments",
			slog.Int("checked", summary.Checked),
			slog.Int("confirmed", summary.Outcomes[OutcomeSuccess]),
			slog.Int("failed", summary.Outcomes[OutcomeFailed]),
			slog.Int("resettled", summary.Resettled),
			slog.Int("unsettled", len(unsettled)),
		)
	}
	return summary, nil
}
