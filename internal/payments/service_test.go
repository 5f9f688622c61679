package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-tours/internal/shared"
)

type memKeys struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *memKeys) CheckAndInsert(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]struct{})
	}
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memKeys) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func TestInitiateCreatesPendingTransaction(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, &memKeys{}, nil)

	tx, err := svc.Initiate(context.Background(), InitiateRequest{
		PaymentGatewayID: "gw-new",
		Amount:           decimal.RequireFromString("99.95"),
		Currency:         "IDR",
		InvoiceID:        int64Ptr(3),
	}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, tx.Status)
	assert.NotEmpty(t, tx.ID)

	_, err = svc.Initiate(context.Background(), InitiateRequest{
		PaymentGatewayID: "gw-other",
		Amount:           decimal.RequireFromString("99.95"),
		Currency:         "IDR",
		InvoiceID:        int64Ptr(3),
	}, "key-1")
	require.ErrorIs(t, err, ErrDuplicateGateway)
}

func TestInitiateValidation(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, nil)

	_, err := svc.Initiate(context.Background(), InitiateRequest{PaymentGatewayID: "gw", Amount: decimal.Zero, Currency: "IDR", InvoiceID: int64Ptr(1)}, "")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Initiate(context.Background(), InitiateRequest{PaymentGatewayID: "gw", Amount: decimal.RequireFromString("0.001"), Currency: "IDR", InvoiceID: int64Ptr(1)}, "")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Initiate(context.Background(), InitiateRequest{PaymentGatewayID: "gw", Amount: decimal.RequireFromString("12.345"), Currency: "IDR", InvoiceID: int64Ptr(1)}, "")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Initiate(context.Background(), InitiateRequest{PaymentGatewayID: "gw", Amount: decimal.NewFromInt(1), Currency: "IDR"}, "")
	require.ErrorIs(t, err, ErrMissingDocument)
}

func TestRecheckPendingReconcilesStaleRows(t *testing.T) {
	stale := pendingTx("T20", "gw-20")
	fresh := pendingTx("T21", "gw-21")
	fresh.CreatedAt = reconcileNow
	repo := newMemRepo(stale, fresh)
	verifier := &fakeVerifier{result: Verification{Status: VerifiedSuccessful}}
	rec := newTestReconciler(repo, verifier, nil, nil, ReconcilerConfig{})
	svc := NewService(repo, rec, nil, nil)
	svc.now = func() time.Time { return reconcileNow }

	summary, err := svc.RecheckPending(context.Background(), 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Outcomes[OutcomeSuccess])
	assert.Equal(t, StatusConfirmed, repo.get("gw-20").Status)
	assert.Equal(t, StatusPending, repo.get("gw-21").Status)
}

func TestRecheckPendingSettlesConfirmedLeftBehind(t *testing.T) {
	tx := pendingTx("T22", "gw-22")
	tx.InvoiceID = int64Ptr(8)
	repo := newMemRepo(tx)
	verifier := &fakeVerifier{result: Verification{Status: VerifiedSuccessful}}
	conflict := &pgconn.PgError{Code: "40001"}
	settler := &fakeSettler{errs: []error{conflict, conflict, conflict}}
	rec := newTestReconciler(repo, verifier, settler, nil, ReconcilerConfig{})
	svc := NewService(repo, rec, nil, nil)
	svc.now = func() time.Time { return reconcileNow }

	res := rec.Reconcile(context.Background(), Callback{GatewayID: "gw-22"})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, 3, settler.callCount())
	require.Nil(t, repo.get("gw-22").SettledAt)

	summary, err := svc.RecheckPending(context.Background(), 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Checked)
	assert.Equal(t, 1, summary.Resettled)
	assert.Equal(t, 4, settler.callCount())
	assert.True(t, settler.calls[3].paid.Equal(decimal.RequireFromString("150")))
	assert.NotNil(t, repo.get("gw-22").SettledAt)

	summary, err = svc.RecheckPending(context.Background(), 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Resettled)
	assert.Equal(t, 4, settler.callCount())
}

func TestCallbackAlwaysRedirects(t *testing.T) {
	repo := newMemRepo(pendingTx("T30", "gw-30"))
	verifier := &fakeVerifier{result: Verification{Status: VerifiedFailed, Reason: "insufficient funds"}}
	rec := newTestReconciler(repo, verifier, nil, nil, ReconcilerConfig{})
	handler := NewHandler(testLogger(), NewService(repo, rec, nil, nil), noRBAC())

	r := chi.NewRouter()
	handler.MountPublicRoutes(r)

	cases := map[string]string{
		"/payments/callback?id=gw-30":   "/payment/error?reason=payment_failed&id=T30",
		"/payments/callback?id=missing": "/payment/error?reason=transaction_not_found",
		"/payments/callback":            "/payment/error?reason=transaction_not_found",
	}
	for target, location := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code, target)
		assert.Equal(t, location, rec.Header().Get("Location"), target)
	}
}

func TestInitiateHandlerRejectsBadBody(t *testing.T) {
	handler := NewHandler(testLogger(), NewService(newMemRepo(), nil, nil, nil), noRBAC())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/transactions", strings.NewReader(`{"currency":"idr"}`))
	handler.Initiate(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
