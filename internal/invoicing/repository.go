package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-tours/internal/numbering"
	"github.com/odyssey-erp/odyssey-tours/internal/platform/db"
)

// Repository persists documents. It doubles as the numbering store so the
// number read and the document insert share one transaction.
type Repository interface {
	InScope(ctx context.Context, scope numbering.Scope, fn func(context.Context, Repository, string) error) error
	LastNumber(ctx context.Context, scope numbering.Scope) (string, error)
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, kind Kind, id int64) (*Document, error)
	GetForUpdate(ctx context.Context, kind Kind, id int64) (*Document, error)
	Insert(ctx context.Context, doc Document) (*Document, error)
	UpdateStatus(ctx context.Context, kind Kind, id int64, change StatusChange) error
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// WithTx runs fn at read committed. Writers serialise on the FOR UPDATE row
// lock taken by GetForUpdate, so a concurrent status change or settlement
// waits instead of failing with a serialization error.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTxOptions(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

// InScope serialises issuance per scope with a transaction-scoped advisory
// lock. Read committed is required: the max lookup must see rows committed by
// whoever held the lock before us.
func (r *repository) InScope(ctx context.Context, scope numbering.Scope, fn func(context.Context, Repository, string) error) error {
	kind := Kind(scope.Type)
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownKind, scope.Type)
	}
	return db.WithTxOptions(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scope.Key()); err != nil {
			return fmt.Errorf("lock number scope %s: %w", scope.Key(), err)
		}
		txRepo := &repository{db: tx, pool: r.pool}
		last, err := txRepo.LastNumber(ctx, scope)
		if err != nil {
			return err
		}
		return fn(ctx, txRepo, last)
	})
}

func (r *repository) LastNumber(ctx context.Context, scope numbering.Scope) (string, error) {
	kind := Kind(scope.Type)
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, scope.Type)
	}
	// Longer numbers sort first so sequences past the pad width still win.
	query := fmt.Sprintf(`SELECT number FROM %s WHERE number LIKE $1 ESCAPE '\'
		ORDER BY length(number) DESC, number DESC LIMIT 1`, kind.Collection())
	var number string
	err := r.db.QueryRow(ctx, query, likePrefix(scope.Prefix)).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("last %s number: %w", strings.ToLower(string(kind)), err)
	}
	return number, nil
}

const documentColumns = `id, number, customer_id, currency, amount, tax, total, status, notes,
	cancelled_at, cancel_reason, created_by, updated_by, updated_by_name, created_at, updated_at`

func (r *repository) Get(ctx context.Context, kind Kind, id int64) (*Document, error) {
	return r.get(ctx, kind, id, "")
}

func (r *repository) GetForUpdate(ctx context.Context, kind Kind, id int64) (*Document, error) {
	return r.get(ctx, kind, id, " FOR UPDATE")
}

func (r *repository) get(ctx context.Context, kind Kind, id int64, lock string) (*Document, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1%s`, documentColumns, kind.Collection(), lock)
	doc, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %d", ErrNotFound, strings.ToLower(string(kind)), id)
		}
		return nil, err
	}
	doc.Kind = kind
	return doc, nil
}

func (r *repository) Insert(ctx context.Context, doc Document) (*Document, error) {
	if !doc.Kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, doc.Kind)
	}
	query := fmt.Sprintf(`INSERT INTO %s (number, customer_id, currency, amount, tax, total, status, notes,
		created_by, updated_by, updated_by_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $10, $11, $11)
		RETURNING %s`, doc.Kind.Collection(), documentColumns)
	inserted, err := scanDocument(r.db.QueryRow(ctx, query,
		doc.Number, doc.CustomerID, doc.Currency, doc.Amount, doc.Tax, doc.Total, doc.Status, doc.Notes,
		doc.CreatedBy, doc.UpdatedByName, doc.CreatedAt,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", numbering.ErrNumberConflict, doc.Number)
		}
		return nil, fmt.Errorf("insert %s: %w", strings.ToLower(string(doc.Kind)), err)
	}
	inserted.Kind = doc.Kind
	return inserted, nil
}

func (r *repository) UpdateStatus(ctx context.Context, kind Kind, id int64, change StatusChange) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	query := fmt.Sprintf(`UPDATE %s SET status = $2, updated_at = $3, updated_by = $4, updated_by_name = $5,
		cancelled_at = COALESCE($6, cancelled_at), cancel_reason = COALESCE($7, cancel_reason)
		WHERE id = $1`, kind.Collection())
	tag, err := r.db.Exec(ctx, query, id, change.Status, change.At, change.ActorID, change.ActorName,
		change.CancelledAt, change.CancelReason)
	if err != nil {
		return fmt.Errorf("update %s status: %w", strings.ToLower(string(kind)), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %d", ErrNotFound, strings.ToLower(string(kind)), id)
	}
	return nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID, &doc.Number, &doc.CustomerID, &doc.Currency, &doc.Amount, &doc.Tax, &doc.Total,
		&doc.Status, &doc.Notes, &doc.CancelledAt, &doc.CancelReason, &doc.CreatedBy, &doc.UpdatedBy,
		&doc.UpdatedByName, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
