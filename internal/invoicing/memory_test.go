package invoicing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/odyssey-erp/odyssey-tours/internal/numbering"
	"github.com/odyssey-erp/odyssey-tours/internal/shared"
)

// memState is shared by a memRepo and its transaction-scoped copies. The
// mutex stands in for both row locks and the advisory scope lock.
type memState struct {
	mu     sync.Mutex
	docs   map[Kind]map[int64]Document
	nextID int64
	reads  int
	writes int
}

type memRepo struct {
	state *memState
	inTx  bool
}

func newMemRepo() *memRepo {
	return &memRepo{state: &memState{docs: map[Kind]map[int64]Document{
		KindInvoice:   {},
		KindQuotation: {},
	}}}
}

func (r *memRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.state.mu.Lock()
	return r.state.mu.Unlock
}

func (r *memRepo) seed(doc Document) Document {
	defer r.lock()()
	r.state.nextID++
	doc.ID = r.state.nextID
	r.state.docs[doc.Kind][doc.ID] = doc
	return doc
}

func (r *memRepo) stored(kind Kind, id int64) Document {
	defer r.lock()()
	return r.state.docs[kind][id]
}

func (r *memRepo) counts() (reads, writes int) {
	defer r.lock()()
	return r.state.reads, r.state.writes
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	snapshot := make(map[Kind]map[int64]Document, len(r.state.docs))
	for kind, docs := range r.state.docs {
		snapshot[kind] = make(map[int64]Document, len(docs))
		for id, doc := range docs {
			snapshot[kind][id] = doc
		}
	}
	if err := fn(ctx, &memRepo{state: r.state, inTx: true}); err != nil {
		r.state.docs = snapshot
		return err
	}
	return nil
}

func (r *memRepo) InScope(ctx context.Context, scope numbering.Scope, fn func(context.Context, Repository, string) error) error {
	return r.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		last, err := tx.LastNumber(ctx, scope)
		if err != nil {
			return err
		}
		return fn(ctx, tx, last)
	})
}

func (r *memRepo) LastNumber(_ context.Context, scope numbering.Scope) (string, error) {
	defer r.lock()()
	var best string
	for _, doc := range r.state.docs[Kind(scope.Type)] {
		if !strings.HasPrefix(doc.Number, scope.Prefix) {
			continue
		}
		if len(doc.Number) > len(best) || (len(doc.Number) == len(best) && doc.Number > best) {
			best = doc.Number
		}
	}
	return best, nil
}

func (r *memRepo) Get(_ context.Context, kind Kind, id int64) (*Document, error) {
	defer r.lock()()
	r.state.reads++
	doc, ok := r.state.docs[kind][id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return &doc, nil
}

func (r *memRepo) GetForUpdate(ctx context.Context, kind Kind, id int64) (*Document, error) {
	return r.Get(ctx, kind, id)
}

func (r *memRepo) Insert(_ context.Context, doc Document) (*Document, error) {
	defer r.lock()()
	for _, existing := range r.state.docs[doc.Kind] {
		if existing.Number == doc.Number {
			return nil, fmt.Errorf("%w: %s", numbering.ErrNumberConflict, doc.Number)
		}
	}
	r.state.writes++
	r.state.nextID++
	doc.ID = r.state.nextID
	r.state.docs[doc.Kind][doc.ID] = doc
	return &doc, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, kind Kind, id int64, change StatusChange) error {
	defer r.lock()()
	doc, ok := r.state.docs[kind][id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	r.state.writes++
	doc.apply(change)
	r.state.docs[kind][id] = doc
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
	err     error
}

func (a *memAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, log)
	return nil
}
