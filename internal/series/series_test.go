package series

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

type memoryStore struct {
	counters map[Key]*Counter
	locks    int
	saves    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{counters: make(map[Key]*Counter)}
}

func (s *memoryStore) LockCounter(ctx context.Context, key Key) (*Counter, error) {
	s.locks++
	c, ok := s.counters[key]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memoryStore) SaveCounter(ctx context.Context, c *Counter) error {
	s.saves++
	cp := *c
	s.counters[c.Key] = &cp
	return nil
}

func invoiceKey() Key {
	return Key{CompanyID: 1, SubsidiaryID: 1, TerminalID: 1, DocumentType: documents.TypeInvoice}
}

func TestAllocateSequential(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	key := invoiceKey()
	store.counters[key] = &Counter{ID: 1, Key: key, Series: "F001", NextNumber: 0}
	alloc := NewAllocator(store)

	for want := int64(1); want <= 5; want++ {
		a, err := alloc.Allocate(ctx, key, nil)
		require.NoError(t, err)
		require.Equal(t, "F001", a.Series)
		require.Equal(t, want, a.Number)
	}
	require.Equal(t, int64(5), store.counters[key].NextNumber)
}

func TestAllocateUnconfiguredKey(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(newMemoryStore())

	_, err := alloc.Allocate(ctx, invoiceKey(), nil)
	require.ErrorIs(t, err, ErrSeriesNotConfigured)
}

func TestAllocateExplicitAdvancesCounter(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	key := invoiceKey()
	store.counters[key] = &Counter{ID: 1, Key: key, Series: "F001", NextNumber: 10}
	alloc := NewAllocator(store)

	explicit := int64(25)
	a, err := alloc.Allocate(ctx, key, &explicit)
	require.NoError(t, err)
	require.Equal(t, int64(25), a.Number)
	require.Equal(t, int64(25), store.counters[key].NextNumber)

	// The next automatic allocation continues past the backfilled value.
	a, err = alloc.Allocate(ctx, key, nil)
	require.NoError(t, err)
	require.Equal(t, int64(26), a.Number)
}

func TestAllocateExplicitBehindSequenceNeverRewinds(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	key := invoiceKey()
	store.counters[key] = &Counter{ID: 1, Key: key, Series: "F001", NextNumber: 50}
	alloc := NewAllocator(store)

	explicit := int64(7)
	a, err := alloc.Allocate(ctx, key, &explicit)
	require.NoError(t, err)
	require.Equal(t, int64(7), a.Number)
	require.Equal(t, int64(50), store.counters[key].NextNumber)
	require.Zero(t, store.saves)
}

// lockingStore behaves like the row lock in Postgres: LockCounter blocks
// until the previous holder releases it through SaveCounter.
type lockingStore struct {
	mu      sync.Mutex
	counter *Counter
}

func (s *lockingStore) LockCounter(ctx context.Context, key Key) (*Counter, error) {
	s.mu.Lock()
	cp := *s.counter
	return &cp, nil
}

func (s *lockingStore) SaveCounter(ctx context.Context, c *Counter) error {
	cp := *c
	s.counter = &cp
	s.mu.Unlock()
	return nil
}

func TestAllocateConcurrentIsGapFree(t *testing.T) {
	ctx := context.Background()
	key := invoiceKey()
	store := &lockingStore{counter: &Counter{ID: 1, Key: key, Series: "F001", NextNumber: 0}}
	alloc := NewAllocator(store)

	const workers = 50
	numbers := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := alloc.Allocate(ctx, key, nil)
			require.NoError(t, err)
			numbers <- a.Number
		}()
	}
	wg.Wait()
	close(numbers)

	// Every number from 1..workers is issued exactly once.
	seen := make(map[int64]bool, workers)
	for n := range numbers {
		require.False(t, seen[n], "number %d issued twice", n)
		seen[n] = true
	}
	for want := int64(1); want <= workers; want++ {
		require.True(t, seen[want], "number %d never issued", want)
	}
	require.Equal(t, int64(workers), store.counter.NextNumber)
}

func TestNoteSequencesAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	plain := invoiceKey()
	noteAgainstInvoice := Key{CompanyID: 1, SubsidiaryID: 1, TerminalID: 1, DocumentType: documents.TypeCreditNote, NoteType: string(documents.TypeInvoice)}
	noteAgainstReceipt := Key{CompanyID: 1, SubsidiaryID: 1, TerminalID: 1, DocumentType: documents.TypeCreditNote, NoteType: string(documents.TypeReceipt)}
	store.counters[plain] = &Counter{ID: 1, Key: plain, Series: "F001", NextNumber: 0}
	store.counters[noteAgainstInvoice] = &Counter{ID: 2, Key: noteAgainstInvoice, Series: "FC01", NextNumber: 0}
	store.counters[noteAgainstReceipt] = &Counter{ID: 3, Key: noteAgainstReceipt, Series: "BC01", NextNumber: 0}
	alloc := NewAllocator(store)

	a1, err := alloc.Allocate(ctx, plain, nil)
	require.NoError(t, err)
	a2, err := alloc.Allocate(ctx, noteAgainstInvoice, nil)
	require.NoError(t, err)
	a3, err := alloc.Allocate(ctx, noteAgainstReceipt, nil)
	require.NoError(t, err)

	require.Equal(t, Allocation{Series: "F001", Number: 1}, a1)
	require.Equal(t, Allocation{Series: "FC01", Number: 1}, a2)
	require.Equal(t, Allocation{Series: "BC01", Number: 1}, a3)
}
