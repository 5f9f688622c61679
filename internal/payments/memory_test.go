package payments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-tours/internal/rbac"
)

type memRepo struct {
	mu       sync.Mutex
	byID     map[string]*Transaction
	confirms int
	cancels  int
	failWith error
}

func newMemRepo(txs ...Transaction) *memRepo {
	repo := &memRepo{byID: make(map[string]*Transaction)}
	for i := range txs {
		tx := txs[i]
		repo.byID[tx.PaymentGatewayID] = &tx
	}
	return repo
}

func (m *memRepo) get(gatewayID string) Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[gatewayID]
}

func (m *memRepo) GetByGatewayID(_ context.Context, gatewayID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byID[gatewayID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, gatewayID)
	}
	cp := *tx
	return &cp, nil
}

func (m *memRepo) Insert(_ context.Context, tx Transaction) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[tx.PaymentGatewayID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateGateway, tx.PaymentGatewayID)
	}
	m.byID[tx.PaymentGatewayID] = &tx
	cp := tx
	return &cp, nil
}

func (m *memRepo) ConfirmPending(_ context.Context, gatewayID string, confirmedAt time.Time, gatewayStatus string) (*Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, false, m.failWith
	}
	tx, ok := m.byID[gatewayID]
	if !ok || tx.Status != StatusPending {
		return nil, false, nil
	}
	m.confirms++
	tx.Status = StatusConfirmed
	tx.ConfirmedAt = &confirmedAt
	tx.PaymentGatewayStatus = gatewayStatus
	cp := *tx
	return &cp, true, nil
}

func (m *memRepo) CancelPending(_ context.Context, gatewayID, note, gatewayStatus string) (*Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, false, m.failWith
	}
	tx, ok := m.byID[gatewayID]
	if !ok || tx.Status != StatusPending {
		return nil, false, nil
	}
	m.cancels++
	tx.Status = StatusCancelled
	tx.Note = &note
	tx.PaymentGatewayStatus = gatewayStatus
	cp := *tx
	return &cp, true, nil
}

func (m *memRepo) ConfirmedTotal(_ context.Context, ref DocumentRef) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, tx := range m.byID {
		if owner, ok := tx.Document(); ok && owner == ref && tx.Status == StatusConfirmed {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

func (m *memRepo) ListByDocument(_ context.Context, ref DocumentRef) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, tx := range m.byID {
		if owner, ok := tx.Document(); ok && owner == ref {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *memRepo) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, tx := range m.byID {
		if tx.Status == StatusPending && tx.CreatedAt.Before(createdBefore) {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) ListUnsettled(_ context.Context, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, tx := range m.byID {
		if tx.Status == StatusConfirmed && tx.SettledAt == nil {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) MarkSettled(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.byID {
		if tx.ID == id && tx.Status == StatusConfirmed && tx.SettledAt == nil {
			tx.SettledAt = &at
		}
	}
	return nil
}

type fakeVerifier struct {
	mu     sync.Mutex
	result Verification
	err    error
	calls  int
	block  bool
}

func (f *fakeVerifier) Verify(ctx context.Context, _ string) (Verification, error) {
	f.mu.Lock()
	f.calls++
	result, err, block := f.result, f.err, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return Verification{}, ctx.Err()
	}
	return result, err
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type settleCall struct {
	ref  DocumentRef
	paid decimal.Decimal
}

// fakeSettler fails its first calls with errs, in order, and records whether
// the context it was handed had already been cancelled.
type fakeSettler struct {
	mu        sync.Mutex
	calls     []settleCall
	errs      []error
	cancelled int
}

func (f *fakeSettler) SettleDocument(ctx context.Context, ref DocumentRef, paid decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, settleCall{ref: ref, paid: paid})
	if ctx.Err() != nil {
		f.cancelled++
		return ctx.Err()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeSettler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Transaction
}

func (f *fakeNotifier) PaymentConfirmed(_ context.Context, tx Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func int64Ptr(v int64) *int64 { return &v }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noRBAC() rbac.Middleware {
	return rbac.Middleware{}
}
