package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-tours/internal/platform/db"
)

// Repository persists transactions. Status changes are single conditional
// updates guarded by status = 'PENDING'.
type Repository interface {
	GetByGatewayID(ctx context.Context, gatewayID string) (*Transaction, error)
	Insert(ctx context.Context, tx Transaction) (*Transaction, error)
	// ConfirmPending reports changed=false when the row was no longer PENDING.
	ConfirmPending(ctx context.Context, gatewayID string, confirmedAt time.Time, gatewayStatus string) (*Transaction, bool, error)
	CancelPending(ctx context.Context, gatewayID, note, gatewayStatus string) (*Transaction, bool, error)
	ConfirmedTotal(ctx context.Context, ref DocumentRef) (decimal.Decimal, error)
	ListByDocument(ctx context.Context, ref DocumentRef) ([]Transaction, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Transaction, error)
	// ListUnsettled returns confirmed transactions whose document has not
	// yet been settled against them.
	ListUnsettled(ctx context.Context, limit int) ([]Transaction, error)
	MarkSettled(ctx context.Context, id string, at time.Time) error
}

type repository struct {
	db db.DBTX
}

// NewRepository returns a pgx backed Repository. conn is usually the pool.
func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

const transactionColumns = `id, payment_gateway_id, status, payment_gateway_status, amount, currency,
	quotation_id, invoice_id, note, confirmed_at, settled_at, created_at, updated_at`

func (r *repository) GetByGatewayID(ctx context.Context, gatewayID string) (*Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM customer_transactions WHERE payment_gateway_id = $1`, gatewayID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, gatewayID)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (r *repository) Insert(ctx context.Context, t Transaction) (*Transaction, error) {
	inserted, err := scanTransaction(r.db.QueryRow(ctx, `INSERT INTO customer_transactions
		(id, payment_gateway_id, status, payment_gateway_status, amount, currency, quotation_id, invoice_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+transactionColumns,
		t.ID, t.PaymentGatewayID, t.Status, t.PaymentGatewayStatus, t.Amount, t.Currency,
		t.QuotationID, t.InvoiceID, t.CreatedAt,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGateway, t.PaymentGatewayID)
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return inserted, nil
}

func (r *repository) ConfirmPending(ctx context.Context, gatewayID string, confirmedAt time.Time, gatewayStatus string) (*Transaction, bool, error) {
	return r.updatePending(ctx, `UPDATE customer_transactions
		SET status = 'CONFIRMED', confirmed_at = $2, payment_gateway_status = $3, updated_at = NOW()
		WHERE payment_gateway_id = $1 AND status = 'PENDING'
		RETURNING `+transactionColumns, gatewayID, confirmedAt, gatewayStatus)
}

func (r *repository) CancelPending(ctx context.Context, gatewayID, note, gatewayStatus string) (*Transaction, bool, error) {
	return r.updatePending(ctx, `UPDATE customer_transactions
		SET status = 'CANCELLED', note = $2, payment_gateway_status = $3, updated_at = NOW()
		WHERE payment_gateway_id = $1 AND status = 'PENDING'
		RETURNING `+transactionColumns, gatewayID, note, gatewayStatus)
}

func (r *repository) updatePending(ctx context.Context, query string, args ...any) (*Transaction, bool, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("update pending transaction: %w", err)
	}
	return tx, true, nil
}

func (r *repository) ConfirmedTotal(ctx context.Context, ref DocumentRef) (decimal.Decimal, error) {
	column, err := refColumn(ref)
	if err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	err = r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM customer_transactions
		WHERE `+column+` = $1 AND status = 'CONFIRMED'`, ref.ID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("confirmed total: %w", err)
	}
	return total, nil
}

func (r *repository) ListByDocument(ctx context.Context, ref DocumentRef) ([]Transaction, error) {
	column, err := refColumn(ref)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, `SELECT `+transactionColumns+` FROM customer_transactions
		WHERE `+column+` = $1 ORDER BY created_at DESC`, ref.ID)
}

func (r *repository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM customer_transactions
		WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at LIMIT $2`, createdBefore, limit)
}

func (r *repository) ListUnsettled(ctx context.Context, limit int) ([]Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM customer_transactions
		WHERE status = 'CONFIRMED' AND settled_at IS NULL ORDER BY confirmed_at LIMIT $1`, limit)
}

func (r *repository) MarkSettled(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE customer_transactions SET settled_at = $2
		WHERE id = $1 AND status = 'CONFIRMED' AND settled_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark transaction settled: %w", err)
	}
	return nil
}

func (r *repository) list(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func refColumn(ref DocumentRef) (string, error) {
	switch ref.Kind {
	case DocumentQuotation:
		return "quotation_id", nil
	case DocumentInvoice:
		return "invoice_id", nil
	}
	return "", fmt.Errorf("unknown document kind %q", ref.Kind)
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		t             Transaction
		gatewayStatus *string
	)
	err := row.Scan(
		&t.ID, &t.PaymentGatewayID, &t.Status, &gatewayStatus, &t.Amount, &t.Currency,
		&t.QuotationID, &t.InvoiceID, &t.Note, &t.ConfirmedAt, &t.SettledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if gatewayStatus != nil {
		t.PaymentGatewayStatus = *gatewayStatus
	}
	return &t, nil
}
