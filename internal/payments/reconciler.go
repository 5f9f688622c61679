package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-tours/internal/platform/db"
)

// DefaultVerifyTimeout bounds one verifier call.
const DefaultVerifyTimeout = 10 * time.Second

const defaultFailureNote = "payment failed"

// settleAttempts bounds retries of a settlement that lost a serialization race.
const settleAttempts = 3

// Verifier asks the payment provider for the authoritative payment status.
type Verifier interface {
	Verify(ctx context.Context, gatewayID string) (Verification, error)
}

// Settler moves the owning document into PAID or PARTIAL_PAID.
type Settler interface {
	SettleDocument(ctx context.Context, ref DocumentRef, paid decimal.Decimal) error
}

// Notifier is told about confirmations that actually changed state.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, tx Transaction) error
}

// ReconcilerConfig tunes the reconciler.
type ReconcilerConfig struct {
	VerifyTimeout time.Duration
	// MockEnabled allows callbacks to skip verification. Off unless set.
	MockEnabled bool
	Now         func() time.Time
}

// Reconciler applies gateway callbacks to pending transactions exactly once.
type Reconciler struct {
	repo     Repository
	verifier Verifier
	settler  Settler
	notifier Notifier
	logger   *slog.Logger
	metrics  *Metrics
	cfg      ReconcilerConfig
	inflight singleflight.Group
}

// NewReconciler wires a Reconciler. settler, notifier and metrics may be nil.
func NewReconciler(repo Repository, verifier Verifier, settler Settler, notifier Notifier, logger *slog.Logger, metrics *Metrics, cfg ReconcilerConfig) *Reconciler {
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = DefaultVerifyTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		repo:     repo,
		verifier: verifier,
		settler:  settler,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Reconcile resolves a callback to a redirect. It never fails: every fault
// degrades to an error destination and is logged here.
func (r *Reconciler) Reconcile(ctx context.Context, cb Callback) Result {
	logger := r.logger.With(slog.String("gateway_id", cb.GatewayID))

	mock := cb.Mock && r.cfg.MockEnabled
	if cb.Mock && !mock {
		r.metrics.observeMockIgnored()
		logger.Warn("mock payment flag ignored: mock payments are disabled")
	}

	if cb.GatewayID == "" {
		return r.finish(OutcomeNotFound, nil)
	}
	tx, err := r.repo.GetByGatewayID(ctx, cb.GatewayID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			logger.Info("payment callback for unknown transaction")
			return r.finish(OutcomeNotFound, nil)
		}
		logger.Error("load transaction", slog.Any("error", err))
		return r.finish(OutcomeServerError, nil)
	}

	var verification Verification
	if mock {
		now := r.cfg.Now()
		verification = Verification{Status: VerifiedSuccessful, ProviderStatus: "mock", PaidAt: &now}
	} else {
		verification, err = r.verify(ctx, cb.GatewayID)
		switch {
		case errors.Is(err, ErrVerifierTimeout):
			logger.Warn("payment verification inconclusive", slog.Any("error", err))
			return r.finish(OutcomePending, tx)
		case err != nil:
			logger.Error("payment verification failed", slog.Any("error", err))
			return r.finish(OutcomeServerError, tx)
		}
	}

	switch verification.Status {
	case VerifiedSuccessful:
		confirmedAt := r.cfg.Now()
		if verification.PaidAt != nil {
			confirmedAt = *verification.PaidAt
		}
		updated, changed, err := r.repo.ConfirmPending(ctx, cb.GatewayID, confirmedAt, verification.ProviderStatus)
		if err != nil {
			logger.Error("confirm transaction", slog.Any("error", err))
			return r.finish(OutcomeServerError, tx)
		}
		if !changed {
			return r.replay(ctx, logger, cb.GatewayID)
		}
		logger.Info("payment confirmed", slog.String("transaction_id", updated.ID))
		r.afterConfirm(ctx, logger, updated)
		return r.finish(OutcomeSuccess, updated)

	case VerifiedFailed:
		note := verification.Reason
		if note == "" {
			note = defaultFailureNote
		}
		updated, changed, err := r.repo.CancelPending(ctx, cb.GatewayID, note, verification.ProviderStatus)
		if err != nil {
			logger.Error("cancel transaction", slog.Any("error", err))
			return r.finish(OutcomeServerError, tx)
		}
		if !changed {
			return r.replay(ctx, logger, cb.GatewayID)
		}
		logger.Info("payment cancelled", slog.String("transaction_id", updated.ID), slog.String("note", note))
		return r.finish(OutcomeFailed, updated)

	default:
		return r.finish(OutcomePending, tx)
	}
}

// verify shares one in-flight verifier call between concurrent callbacks for
// the same gateway id. The call is detached from the first caller's
// cancellation and bounded by the verify timeout instead.
func (r *Reconciler) verify(ctx context.Context, gatewayID string) (Verification, error) {
	ch := r.inflight.DoChan(gatewayID, func() (any, error) {
		vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.VerifyTimeout)
		defer cancel()

		started := time.Now()
		v, err := r.verifier.Verify(vctx, gatewayID)
		if err != nil && errors.Is(vctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrVerifierTimeout, err)
		}
		r.metrics.observeVerify(verifyResult(v, err), time.Since(started))
		return v, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrVerifierTimeout) {
				return Verification{}, res.Err
			}
			return Verification{}, fmt.Errorf("%w: %v", ErrVerifierFault, res.Err)
		}
		return res.Val.(Verification), nil
	case <-ctx.Done():
		return Verification{}, fmt.Errorf("%w: %v", ErrVerifierTimeout, ctx.Err())
	}
}

// replay answers a callback whose transaction already left PENDING. The
// stored state decides the destination; nothing is written.
func (r *Reconciler) replay(ctx context.Context, logger *slog.Logger, gatewayID string) Result {
	current, err := r.repo.GetByGatewayID(ctx, gatewayID)
	if err != nil {
		logger.Error("reload transaction", slog.Any("error", err))
		return r.finish(OutcomeServerError, nil)
	}
	logger.Info("duplicate payment callback", slog.String("status", string(current.Status)))
	switch current.Status {
	case StatusConfirmed:
		if current.SettledAt == nil {
			_ = r.settle(context.WithoutCancel(ctx), logger, current)
		}
		return r.finish(OutcomeSuccess, current)
	case StatusCancelled:
		return r.finish(OutcomeFailed, current)
	default:
		return r.finish(OutcomePending, current)
	}
}

// afterConfirm settles the owning document and queues the notification.
// The confirmation already committed, so the work is detached from the
// caller's cancellation. A failed settlement leaves settled_at unset for the
// recheck sweep or a duplicate callback to retry.
func (r *Reconciler) afterConfirm(ctx context.Context, logger *slog.Logger, tx *Transaction) {
	ctx = context.WithoutCancel(ctx)
	_ = r.settle(ctx, logger, tx)
	if r.notifier != nil {
		if err := r.notifier.PaymentConfirmed(ctx, *tx); err != nil {
			logger.Warn("queue payment notification", slog.Any("error", err))
		}
	}
}

// Resettle retries settlement for a confirmed transaction that was never
// stamped as settled.
func (r *Reconciler) Resettle(ctx context.Context, tx Transaction) error {
	if tx.Status != StatusConfirmed || tx.SettledAt != nil {
		return nil
	}
	logger := r.logger.With(slog.String("gateway_id", tx.PaymentGatewayID))
	return r.settle(ctx, logger, &tx)
}

// settle recomputes the owning document from every confirmed payment against
// it, then stamps tx. Serialization conflicts are retried. A transaction
// without a document is stamped straight away.
func (r *Reconciler) settle(ctx context.Context, logger *slog.Logger, tx *Transaction) error {
	ref, ok := tx.Document()
	if ok && r.settler == nil {
		return nil
	}

	var err error
	if ok {
		logger = logger.With(slog.String("document", ref.Kind), slog.Int64("document_id", ref.ID))
		for attempt := 1; attempt <= settleAttempts; attempt++ {
			err = r.settleOnce(ctx, ref)
			if !db.IsSerializationFailure(err) {
				break
			}
			logger.Warn("settle document conflict", slog.Int("attempt", attempt))
		}
	}
	switch {
	case errors.Is(err, ErrDocumentClosed):
		logger.Warn("confirmed payment against closed document", slog.Any("error", err))
	case err != nil:
		r.metrics.observeSettleFailure()
		logger.Error("settle document", slog.Any("error", err))
		return err
	}

	now := r.cfg.Now()
	if err := r.repo.MarkSettled(ctx, tx.ID, now); err != nil {
		r.metrics.observeSettleFailure()
		logger.Error("mark transaction settled", slog.Any("error", err))
		return err
	}
	tx.SettledAt = &now
	return nil
}

func (r *Reconciler) settleOnce(ctx context.Context, ref DocumentRef) error {
	paid, err := r.repo.ConfirmedTotal(ctx, ref)
	if err != nil {
		return err
	}
	return r.settler.SettleDocument(ctx, ref, paid)
}

func (r *Reconciler) finish(outcome Outcome, tx *Transaction) Result {
	r.metrics.observeOutcome(outcome)
	return Result{
		Outcome:     outcome,
		RedirectURL: RedirectFor(outcome, tx),
		Transaction: tx,
	}
}

func verifyResult(v Verification, err error) string {
	switch {
	case errors.Is(err, ErrVerifierTimeout):
		return "timeout"
	case err != nil:
		return "error"
	}
	return string(v.Status)
}
