// Package kardex derives inventory-movement batches from posted documents
// for downstream stock adjustment. Emission is pure: the emitter never
// touches storage, the posting service persists the batch inside its own
// transaction and the worker ships it after commit.
package kardex

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

// TypeSettings is the tenant's per-document-type stock configuration.
type TypeSettings struct {
	AffectsStock      bool
	RequiresWarehouse bool
}

// Emitter builds movement batches for a tenant with the given base
// currency. Purchase costs recorded in another currency are converted with
// the document's exchange rate; sale costs are copied from the snapshot on
// the line, never recomputed from the current catalog.
type Emitter struct {
	baseCurrency string
}

// NewEmitter constructs an emitter.
func NewEmitter(baseCurrency string) *Emitter {
	return &Emitter{baseCurrency: baseCurrency}
}

// Emit derives the movement batch for doc, or nil when the document has no
// inventory effect: quotations, types configured as non-stock-affecting,
// and ecommerce orders not yet converted to a dispatch.
func (e *Emitter) Emit(doc *documents.Document, settings TypeSettings) *Batch {
	if doc.Type == documents.TypeQuotation || doc.Type == documents.TypeOrder {
		return nil
	}
	if !settings.AffectsStock {
		return nil
	}

	dir := DirectionOut
	if doc.Type == documents.TypePurchase {
		dir = DirectionIn
	}
	// Correcting notes move goods against the document they correct: a
	// credit note on a sale takes the returned goods back IN.
	if doc.Type.IsNote() {
		dir = dir.Flip()
	}

	batch := &Batch{
		CompanyID:        doc.CompanyID,
		DocumentID:       doc.ID,
		DocumentTypeCode: string(doc.Type),
		TypeOperation:    dir,
		DedupKey:         DedupKey(doc, ""),
		Status:           BatchPending,
	}

	for _, line := range doc.Lines {
		if line.IsService {
			// Services never move stock.
			continue
		}
		if !line.Storable() {
			if settings.RequiresWarehouse {
				batch.Warnings = append(batch.Warnings, fmt.Sprintf("line %d: product %d has no resolvable warehouse", line.ID, line.ProductID))
			}
			continue
		}
		batch.Lines = append(batch.Lines, Line{
			ProductID:     line.ProductID,
			WarehouseID:   *line.WarehouseID,
			Quantity:      line.Quantity.Abs(),
			Direction:     dir,
			UnitCost:      e.unitCost(doc, line),
			DocumentRef:   documents.FormatNumber("", doc.Series, doc.Number, 0),
			OperationDate: doc.IssuedAt,
		})
	}

	if len(batch.Lines) == 0 && !batch.HasWarnings() {
		return nil
	}
	return batch
}

// Reverse builds the exact negation of batch for a canceled document: same
// lines, opposite direction, quantity and cost unchanged. The dedup key is
// derived with the cancel suffix so the sink does not collapse the reversal
// into the original submission.
func (e *Emitter) Reverse(doc *documents.Document, original *Batch) *Batch {
	rev := &Batch{
		CompanyID:        original.CompanyID,
		DocumentID:       original.DocumentID,
		DocumentTypeCode: original.DocumentTypeCode,
		TypeOperation:    original.TypeOperation.Flip(),
		DedupKey:         DedupKey(doc, "CANCEL"),
		FlagCancel:       true,
		Status:           BatchPending,
	}
	for _, line := range original.Lines {
		flipped := line
		flipped.Direction = line.Direction.Flip()
		rev.Lines = append(rev.Lines, flipped)
	}
	return rev
}

func (e *Emitter) unitCost(doc *documents.Document, line documents.LineItem) decimal.Decimal {
	if doc.Type == documents.TypePurchase && doc.Currency != e.baseCurrency && doc.ExchangeRate.IsPositive() {
		return line.UnitCost.Mul(doc.ExchangeRate)
	}
	return line.UnitCost
}

// DedupKey computes the stable, deterministic batch key for a document
// identity: documentID + series + number + companyID, with an optional
// suffix for order/note/cancel variants.
func DedupKey(doc *documents.Document, suffix string) uuid.UUID {
	seed := fmt.Sprintf("kardex:%d|%s|%d|%d", doc.ID, doc.Series, doc.Number, doc.CompanyID)
	if doc.Type.IsNote() {
		seed += "|" + string(doc.Type)
	}
	if suffix != "" {
		seed += "|" + suffix
	}
	return uuid.NewSHA1(uuid.Nil, []byte(seed))
}
