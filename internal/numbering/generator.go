package numbering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNumberGenerationFailed is returned once the retry budget is spent.
	ErrNumberGenerationFailed = errors.New("numbering: number generation failed")
	// ErrNumberConflict signals that a candidate number was already taken.
	// Stores wrap unique-constraint violations with it so the generator retries.
	ErrNumberConflict = errors.New("numbering: number already issued")
	// ErrUnknownDocumentType is returned for types without a configured prefix.
	ErrUnknownDocumentType = errors.New("numbering: unknown document type")
)

// DefaultMaxAttempts bounds the retry-on-conflict loop.
const DefaultMaxAttempts = 5

// Store is the transactional view the generator needs over the table that
// owns the numbers. T is the caller's transaction-scoped repository.
type Store[T any] interface {
	// InScope runs fn inside one transaction that is serialized against every
	// other InScope call for the same scope. last is the highest number
	// already issued in scope, or "" when the scope is empty.
	InScope(ctx context.Context, scope Scope, fn func(ctx context.Context, tx T, last string) error) error
	// LastNumber returns the highest number issued in scope without locking.
	LastNumber(ctx context.Context, scope Scope) (string, error)
}

// CommitFunc persists the owning document with the candidate number. Its
// success inside the scope transaction is what fixes the number.
type CommitFunc[T any] func(ctx context.Context, tx T, number string) error

// Config wires optional collaborators for a Generator.
type Config struct {
	Scheme      Scheme
	MaxAttempts int
	Now         func() time.Time
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Generator issues unique, monotonically increasing numbers per scope.
type Generator[T any] struct {
	store       Store[T]
	scheme      Scheme
	maxAttempts int
	now         func() time.Time
	logger      *slog.Logger
	metrics     *Metrics
}

// NewGenerator constructs a Generator over store.
func NewGenerator[T any](store Store[T], cfg Config) *Generator[T] {
	if cfg.Scheme.Prefixes == nil {
		cfg.Scheme = DefaultScheme()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator[T]{
		store:       store,
		scheme:      cfg.Scheme,
		maxAttempts: cfg.MaxAttempts,
		now:         cfg.Now,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Scheme exposes the layout used by the generator.
func (g *Generator[T]) Scheme() Scheme {
	return g.scheme
}

// Issue derives the next number for docType and hands it to commit inside the
// scope transaction. A conflict re-derives the candidate and tries again, up
// to the configured number of attempts.
func (g *Generator[T]) Issue(ctx context.Context, docType DocumentType, commit CommitFunc[T]) (string, error) {
	if commit == nil {
		return "", errors.New("numbering: commit func required")
	}
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		scope, err := g.scheme.ScopeFor(docType, g.now())
		if err != nil {
			return "", err
		}

		var number string
		err = g.store.InScope(ctx, scope, func(ctx context.Context, tx T, last string) error {
			next, err := g.next(scope, last)
			if err != nil {
				return err
			}
			number = next
			return commit(ctx, tx, number)
		})
		if err == nil {
			return number, nil
		}
		if !errors.Is(err, ErrNumberConflict) {
			return "", err
		}

		g.metrics.observeConflict(docType)
		g.logger.Warn("document number conflict",
			slog.String("type", string(docType)),
			slog.String("candidate", number),
			slog.Int("attempt", attempt),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
	}

	g.metrics.observeExhausted(docType)
	return "", fmt.Errorf("%w: %s after %d attempts", ErrNumberGenerationFailed, docType, g.maxAttempts)
}

// Peek returns the number the next Issue would most likely produce. Nothing
// is reserved.
func (g *Generator[T]) Peek(ctx context.Context, docType DocumentType) (string, error) {
	scope, err := g.scheme.ScopeFor(docType, g.now())
	if err != nil {
		return "", err
	}
	last, err := g.store.LastNumber(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("numbering: last number: %w", err)
	}
	return g.next(scope, last)
}

func (g *Generator[T]) next(scope Scope, last string) (string, error) {
	seq := 0
	if last != "" {
		parsed, err := g.scheme.Sequence(scope, last)
		if err != nil {
			return "", err
		}
		seq = parsed
	}
	return g.scheme.Format(scope, seq+1), nil
}
