package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-tours/internal/numbering"
	"github.com/odyssey-erp/odyssey-tours/internal/shared"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrUnknownKind       = errors.New("unknown document kind")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrTerminalState     = errors.New("document is in a terminal state")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// AuditRecorder stores audit entries. *shared.AuditLogger satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements document creation and the status state machine.
type Service struct {
	repo    Repository
	numbers *numbering.Generator[Repository]
	audit   AuditRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository, numbers *numbering.Generator[Repository], audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		numbers: numbers,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// Create stores a DRAFT document under a freshly issued number.
func (s *Service) Create(ctx context.Context, kind Kind, req CreateRequest, actor shared.Actor) (*Document, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if req.Amount.IsNegative() || req.Tax.IsNegative() {
		return nil, fmt.Errorf("%w: amount and tax must not be negative", ErrInvalidAmount)
	}
	if !fitsMoneyScale(req.Amount) || !fitsMoneyScale(req.Tax) {
		return nil, fmt.Errorf("%w: amount and tax allow at most %d decimal places", ErrInvalidAmount, moneyScale)
	}

	var created *Document
	number, err := s.numbers.Issue(ctx, kind.DocumentType(), func(ctx context.Context, repo Repository, number string) error {
		now := s.now()
		doc, err := repo.Insert(ctx, Document{
			Kind:          kind,
			Number:        number,
			CustomerID:    req.CustomerID,
			Currency:      req.Currency,
			Amount:        req.Amount,
			Tax:           req.Tax,
			Total:         req.Amount.Add(req.Tax),
			Status:        StatusDraft,
			Notes:         req.Notes,
			CreatedBy:     actor.ID,
			UpdatedBy:     actor.ID,
			UpdatedByName: actor.DisplayName(),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return err
		}
		created = doc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", kind.Collection(), err)
	}

	s.record(ctx, actor, "create", created, map[string]any{"number": number})
	return created, nil
}

// Get loads a document.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (*Document, error) {
	return s.repo.Get(ctx, kind, id)
}

// PreviewNumber shows the number the next Create would most likely receive.
func (s *Service) PreviewNumber(ctx context.Context, kind Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return s.numbers.Peek(ctx, kind.DocumentType())
}

// Transition applies a direct status change requested by a user. The target
// is validated before anything is read.
func (s *Service) Transition(ctx context.Context, kind Kind, id int64, target string, actor shared.Actor, reason *string) (*Document, error) {
	next, err := ParseStatus(target)
	if err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	var (
		updated  *Document
		previous Status
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		doc, err := repo.GetForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := CheckTransition(doc.Status, next); err != nil {
			return err
		}

		now := s.now()
		change := StatusChange{
			Status:    next,
			ActorID:   actor.ID,
			ActorName: actor.DisplayName(),
			At:        now,
		}
		if next == StatusCancelled {
			change.CancelledAt = &now
			change.CancelReason = cancelReason(reason, actor)
		}
		if err := repo.UpdateStatus(ctx, kind, id, change); err != nil {
			return err
		}
		previous = doc.Status
		doc.apply(change)
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, "status", updated, map[string]any{
		"from": string(previous),
		"to":   string(next),
	})
	return updated, nil
}

// Settle moves a document to PAID or PARTIAL_PAID from the confirmed amount
// paid against it. It is the only path into the payment-only states.
func (s *Service) Settle(ctx context.Context, kind Kind, id int64, paid decimal.Decimal) (*Document, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	var (
		result   *Document
		previous Status
		changed  bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		doc, err := repo.GetForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		result = doc
		if doc.Status.Terminal() {
			return fmt.Errorf("%w: %s %s not settled", ErrTerminalState, doc.Number, doc.Status)
		}
		target, ok := settlementTarget(doc, paid)
		if !ok {
			return nil
		}

		change := StatusChange{
			Status:    target,
			ActorID:   shared.SystemActor.ID,
			ActorName: shared.SystemActor.DisplayName(),
			At:        s.now(),
		}
		if err := repo.UpdateStatus(ctx, kind, id, change); err != nil {
			return err
		}
		previous = doc.Status
		doc.apply(change)
		changed = true
		return nil
	})
	if err != nil {
		return result, err
	}

	if changed {
		s.record(ctx, shared.SystemActor, "settle", result, map[string]any{
			"from": string(previous),
			"to":   string(result.Status),
			"paid": paid.String(),
		})
	}
	return result, nil
}

func settlementTarget(doc *Document, paid decimal.Decimal) (Status, bool) {
	if !doc.Status.Settleable() || !paid.IsPositive() {
		return "", false
	}
	target := StatusPartialPaid
	if paid.GreaterThanOrEqual(doc.Total) {
		target = StatusPaid
	}
	if target == doc.Status {
		return "", false
	}
	return target, true
}

// moneyScale matches the NUMERIC(18, 2) money columns.
const moneyScale = 2

// fitsMoneyScale reports whether d is stored without rounding.
func fitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(moneyScale))
}

func cancelReason(reason *string, actor shared.Actor) *string {
	if reason != nil && *reason != "" {
		return reason
	}
	fallback := "cancelled by " + actor.DisplayName()
	return &fallback
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, doc *Document, meta map[string]any) {
	if s.audit == nil || doc == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actor.ID,
		Action:   doc.Kind.Collection() + "." + action,
		Entity:   doc.Kind.Collection(),
		EntityID: strconv.FormatInt(doc.ID, 10),
		Meta:     meta,
		At:       s.now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed",
			slog.String("action", entry.Action),
			slog.String("entity_id", entry.EntityID),
			slog.Any("error", err),
		)
	}
}
