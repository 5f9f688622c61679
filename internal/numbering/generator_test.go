package numbering

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// memTx is the transaction handle passed to commit funcs in tests.
type memTx struct {
	store *memStore
}

func (tx memTx) insert(number string) error {
	if _, ok := tx.store.numbers[number]; ok {
		return ErrNumberConflict
	}
	tx.store.numbers[number] = struct{}{}
	tx.store.order = append(tx.store.order, number)
	return nil
}

// memStore serialises scopes with a single mutex, standing in for the
// advisory lock, and rolls back nothing because commit funcs either insert or
// fail before touching state.
type memStore struct {
	mu      sync.Mutex
	numbers map[string]struct{}
	order   []string
	// stale makes the first n reads skip the highest number, simulating a
	// writer that bypassed the lock.
	stale int
}

func newMemStore() *memStore {
	return &memStore{numbers: make(map[string]struct{})}
}

func (s *memStore) InScope(ctx context.Context, scope Scope, fn func(context.Context, memTx, string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.last(scope)
	if s.stale > 0 {
		s.stale--
		last = ""
	}
	return fn(ctx, memTx{store: s}, last)
}

func (s *memStore) LastNumber(_ context.Context, scope Scope) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last(scope), nil
}

func (s *memStore) last(scope Scope) string {
	var best string
	for number := range s.numbers {
		if !strings.HasPrefix(number, scope.Prefix) {
			continue
		}
		if len(number) > len(best) || (len(number) == len(best) && number > best) {
			best = number
		}
	}
	return best
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestGeneratorIssueSequential(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator[memTx](store, Config{Now: fixedClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))})

	commit := func(_ context.Context, tx memTx, number string) error { return tx.insert(number) }
	first, err := gen.Issue(context.Background(), TypeInvoice, commit)
	require.NoError(t, err)
	second, err := gen.Issue(context.Background(), TypeInvoice, commit)
	require.NoError(t, err)
	quote, err := gen.Issue(context.Background(), TypeQuotation, commit)
	require.NoError(t, err)

	assert.Equal(t, "INV-202601-0001", first)
	assert.Equal(t, "INV-202601-0002", second)
	assert.Equal(t, "QUO-202601-0001", quote)
}

func TestGeneratorConcurrentIssueIsUniqueAndGapless(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator[memTx](store, Config{Now: fixedClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))})

	const workers = 64
	results := make([]string, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			number, err := gen.Issue(context.Background(), TypeInvoice, func(_ context.Context, tx memTx, number string) error {
				return tx.insert(number)
			})
			results[i] = number
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]struct{}, workers)
	for _, number := range results {
		_, dup := seen[number]
		require.False(t, dup, "duplicate number %s", number)
		seen[number] = struct{}{}
	}

	// Commit order matches numeric order.
	require.Len(t, store.order, workers)
	assert.True(t, sort.StringsAreSorted(store.order))
	assert.Equal(t, "INV-202603-0001", store.order[0])
	assert.Equal(t, "INV-202603-0064", store.order[workers-1])
}

func TestGeneratorRetriesOnConflict(t *testing.T) {
	store := newMemStore()
	store.numbers["INV-202601-0001"] = struct{}{}
	store.stale = 2
	gen := NewGenerator[memTx](store, Config{Now: fixedClock(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))})

	calls := 0
	number, err := gen.Issue(context.Background(), TypeInvoice, func(_ context.Context, tx memTx, number string) error {
		calls++
		return tx.insert(number)
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-202601-0002", number)
	assert.Equal(t, 3, calls)
}

func TestGeneratorExhaustsAttempts(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator[memTx](store, Config{
		MaxAttempts: 3,
		Now:         fixedClock(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)),
	})

	calls := 0
	_, err := gen.Issue(context.Background(), TypeInvoice, func(context.Context, memTx, string) error {
		calls++
		return ErrNumberConflict
	})
	require.ErrorIs(t, err, ErrNumberGenerationFailed)
	assert.Equal(t, 3, calls)
}

func TestGeneratorSurfacesOtherErrors(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator[memTx](store, Config{})
	boom := errors.New("disk full")

	calls := 0
	_, err := gen.Issue(context.Background(), TypeInvoice, func(context.Context, memTx, string) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, store.numbers)
}

func TestGeneratorResetsOnNewMonth(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)
	gen := NewGenerator[memTx](store, Config{Now: func() time.Time { return now }})
	commit := func(_ context.Context, tx memTx, number string) error { return tx.insert(number) }

	jan, err := gen.Issue(context.Background(), TypeInvoice, commit)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	feb, err := gen.Issue(context.Background(), TypeInvoice, commit)
	require.NoError(t, err)

	assert.Equal(t, "INV-202601-0001", jan)
	assert.Equal(t, "INV-202602-0001", feb)
}

func TestGeneratorPeekDoesNotReserve(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator[memTx](store, Config{Now: fixedClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))})

	peek, err := gen.Peek(context.Background(), TypeQuotation)
	require.NoError(t, err)
	assert.Equal(t, "QUO-202605-0001", peek)
	assert.Empty(t, store.numbers)

	issued, err := gen.Issue(context.Background(), TypeQuotation, func(_ context.Context, tx memTx, number string) error {
		return tx.insert(number)
	})
	require.NoError(t, err)
	assert.Equal(t, peek, issued)
}
