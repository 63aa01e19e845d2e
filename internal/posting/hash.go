package posting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

// DuplicateHash derives the deterministic identity of a posting request:
// terminal + company + subsidiary + customer + document type + series +
// date. Two requests with the same hash describe the same business event;
// the second one must be rejected before it allocates a number.
func DuplicateHash(terminalID, companyID, subsidiaryID int64, customerID *int64, docType documents.DocumentType, series string, date time.Time) uuid.UUID {
	var customer int64
	if customerID != nil {
		customer = *customerID
	}
	seed := fmt.Sprintf("posting:%d|%d|%d|%d|%s|%s|%s",
		terminalID, companyID, subsidiaryID, customer, docType, series, date.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(uuid.Nil, []byte(seed))
}

// CancellationHash derives the one-shot identity of a cancellation so a
// racing double-cancel trips the same uniqueness check as a duplicate
// posting.
func CancellationHash(doc *documents.Document) uuid.UUID {
	seed := fmt.Sprintf("cancel:%d|%d|%s|%s|%d", doc.CompanyID, doc.ID, doc.Type, doc.Series, doc.Number)
	return uuid.NewSHA1(uuid.Nil, []byte(seed))
}
