package posting

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/kardex"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/series"
)

// TxRepository is the transactional surface of one posting or cancellation
// unit of work. It embeds the stores the series allocator and ledger poster
// operate through, so every component's writes join the same transaction.
type TxRepository interface {
	series.Store
	ledger.Store

	// DocumentExistsByHash reports whether a document with the duplicate
	// hash already committed. Racing inserts are additionally caught by the
	// unique index on the hash column.
	DocumentExistsByHash(ctx context.Context, hash uuid.UUID) (bool, error)
	InsertDocument(ctx context.Context, doc *documents.Document) (int64, error)
	InsertLine(ctx context.Context, line *documents.LineItem) (int64, error)

	// GetDocumentForUpdate loads a document with its lines under a row lock.
	GetDocumentForUpdate(ctx context.Context, id int64) (*documents.Document, error)
	ListEntriesByDocument(ctx context.Context, documentID int64) ([]ledger.Entry, error)
	GetKardexBatchByDocument(ctx context.Context, documentID int64, flagCancel bool) (*kardex.Batch, error)
	InsertKardexBatch(ctx context.Context, batch *kardex.Batch) (int64, error)

	UpdateDocumentState(ctx context.Context, documentID int64, state documents.State) error
	// ApplyCorrection settles a posted note against its parent document:
	// the signed delta joins the parent's balance and the note's number is
	// recorded among its related documents.
	ApplyCorrection(ctx context.Context, parentID int64, balanceDelta decimal.Decimal, relatedRef string) error
	MarkCanceled(ctx context.Context, documentID int64, reason string, relatedRef string) error
	SetDispatchStatus(ctx context.Context, documentID int64, kardexStatus, notifyStatus documents.DispatchStatus) error
}

// Repository is the posting engine's storage port.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetDocument(ctx context.Context, id int64) (*documents.Document, error)
	GetKardexBatch(ctx context.Context, id int64) (*kardex.Batch, error)
	ListPendingKardexBatches(ctx context.Context, limit int) ([]kardex.Batch, error)
	MarkBatchDispatched(ctx context.Context, batchID int64) error
	MarkBatchFailed(ctx context.Context, batchID int64) error
	SetNotifyDispatched(ctx context.Context, documentID int64) error
	SetTaxStatus(ctx context.Context, documentID int64, status documents.TaxStatus) error
	ListDocuments(ctx context.Context, companyID int64, limit, offset int) ([]documents.Document, int, error)
}
