package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedQuery struct {
	sql  string
	args []any
}

// recordingConn captures statements. Every single-row read finds nothing.
type recordingConn struct {
	queries []recordedQuery
}

func (c *recordingConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.queries = append(c.queries, recordedQuery{sql: sql, args: args})
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (c *recordingConn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.queries = append(c.queries, recordedQuery{sql: sql, args: args})
	return nil, errors.New("recording connection does not return rows")
}

func (c *recordingConn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	c.queries = append(c.queries, recordedQuery{sql: sql, args: args})
	return noRow{}
}

type noRow struct{}

func (noRow) Scan(...any) error { return pgx.ErrNoRows }

func TestConfirmPendingOnlyTouchesPendingRows(t *testing.T) {
	conn := &recordingConn{}
	repo := NewRepository(conn)
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	tx, changed, err := repo.ConfirmPending(context.Background(), "gw-1", at, "approved")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, tx)

	require.Len(t, conn.queries, 1)
	q := conn.queries[0]
	assert.Contains(t, q.sql, "SET status = 'CONFIRMED'")
	assert.Contains(t, q.sql, "WHERE payment_gateway_id = $1 AND status = 'PENDING'")
	assert.Contains(t, q.sql, "RETURNING")
	assert.Equal(t, []any{"gw-1", at, "approved"}, q.args)
}

func TestCancelPendingOnlyTouchesPendingRows(t *testing.T) {
	conn := &recordingConn{}
	repo := NewRepository(conn)

	_, changed, err := repo.CancelPending(context.Background(), "gw-2", "card declined", "rejected")
	require.NoError(t, err)
	assert.False(t, changed)

	require.Len(t, conn.queries, 1)
	assert.Contains(t, conn.queries[0].sql, "SET status = 'CANCELLED'")
	assert.Contains(t, conn.queries[0].sql, "AND status = 'PENDING'")
}

func TestMarkSettledStampsOnce(t *testing.T) {
	conn := &recordingConn{}
	repo := NewRepository(conn)
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	require.NoError(t, repo.MarkSettled(context.Background(), "T1", at))

	require.Len(t, conn.queries, 1)
	assert.Contains(t, conn.queries[0].sql, "AND status = 'CONFIRMED' AND settled_at IS NULL")
	assert.Equal(t, []any{"T1", at}, conn.queries[0].args)
}

func TestGetByGatewayIDMapsMissingRow(t *testing.T) {
	repo := NewRepository(&recordingConn{})

	_, err := repo.GetByGatewayID(context.Background(), "gw-404")
	require.ErrorIs(t, err, ErrTransactionNotFound)
}
