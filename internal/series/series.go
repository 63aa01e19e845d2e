// Package series issues monotonic, gap-free document numbers per
// (terminal, subsidiary, document type) key. Duplicate numbers are a hard
// fiscal violation, so allocation always runs under a row-level lock inside
// the caller's posting transaction; an aborted posting rolls the counter
// back and burns no number.
package series

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

// ErrSeriesNotConfigured indicates no counter row exists for the key and no
// bootstrap default is defined.
var ErrSeriesNotConfigured = errors.New("series not configured")

// Key identifies one numbering sequence.
type Key struct {
	CompanyID    int64
	SubsidiaryID int64
	TerminalID   int64
	DocumentType documents.DocumentType
	// NoteType distinguishes credit/debit note sequences issued against the
	// same terminal. Empty for plain documents.
	NoteType string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d/%s/%s", k.CompanyID, k.SubsidiaryID, k.TerminalID, k.DocumentType, k.NoteType)
}

// Counter is one SeriesCounter row. NextNumber is the last issued value;
// it never decreases except through an explicit manual override.
type Counter struct {
	ID         int64
	Key        Key
	Series     string
	NextNumber int64
}

// Store is the transactional surface the allocator needs. LockCounter must
// acquire a row-level lock (SELECT ... FOR UPDATE or equivalent) held until
// the surrounding transaction ends.
type Store interface {
	LockCounter(ctx context.Context, key Key) (*Counter, error)
	SaveCounter(ctx context.Context, c *Counter) error
}

// Allocation is the issued identifier pair.
type Allocation struct {
	Series string
	Number int64
}

// Allocator issues numbers from counters held in a Store.
type Allocator struct {
	store Store
}

// NewAllocator constructs an allocator over a transaction-bound store.
func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store}
}

// Allocate issues the next number for key, or applies an explicit number
// for historical backfill. The counter mutation joins the caller's
// transaction through the store.
func (a *Allocator) Allocate(ctx context.Context, key Key, explicit *int64) (Allocation, error) {
	counter, err := a.store.LockCounter(ctx, key)
	if err != nil {
		return Allocation{}, err
	}
	if counter == nil {
		return Allocation{}, fmt.Errorf("%w: %s", ErrSeriesNotConfigured, key)
	}

	if explicit != nil {
		// Manual backfill: the explicit value is used as-is. The counter only
		// advances when the value is at or past the sequence head, so imports
		// of historical numbers never rewind it.
		if *explicit >= counter.NextNumber {
			counter.NextNumber = *explicit
			if err := a.store.SaveCounter(ctx, counter); err != nil {
				return Allocation{}, err
			}
		}
		return Allocation{Series: counter.Series, Number: *explicit}, nil
	}

	counter.NextNumber++
	if err := a.store.SaveCounter(ctx, counter); err != nil {
		return Allocation{}, err
	}
	return Allocation{Series: counter.Series, Number: counter.NextNumber}, nil
}
