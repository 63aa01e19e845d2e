// Package tax defines the contract with the country-specific tax-authority
// collaborator. Submission, signing and the regulatory rules themselves are
// out of scope; the posting engine only persists the returned status and
// lets a validated status steer the cancellation path.
package tax

import (
	"context"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

// Authority submits finalized documents and reports their status.
type Authority interface {
	Submit(ctx context.Context, doc *documents.Document) (documents.TaxStatus, error)
	Status(ctx context.Context, documentID int64) (documents.TaxStatus, error)
}

// NoopAuthority satisfies Authority for tenants without a fiscal regime
// integration and for test environments. Every document stays unsent.
type NoopAuthority struct{}

// Submit reports the document as unsent.
func (NoopAuthority) Submit(ctx context.Context, doc *documents.Document) (documents.TaxStatus, error) {
	return documents.TaxUnsent, nil
}

// Status reports unsent.
func (NoopAuthority) Status(ctx context.Context, documentID int64) (documents.TaxStatus, error) {
	return documents.TaxUnsent, nil
}
