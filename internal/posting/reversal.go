package posting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/kardex"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/notify"
	"github.com/meridian-erp/meridian-erp/internal/series"
	"github.com/meridian-erp/meridian-erp/internal/tenant"
)

// Cancel reverses a committed document in one unit of work: it either posts
// a mirror credit note through the full allocate/state/ledger chain, or
// directly inverts the original's ledger and debt effects, then flips the
// original to CANCELED with its balance recomputed. A failure anywhere
// rolls back everything and leaves the original untouched.
func (s *Service) Cancel(ctx context.Context, documentID int64, reason string) (*CancelResult, error) {
	peek, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return nil, fmt.Errorf("%w: document %d", ErrNotFound, documentID)
	}
	settings, err := s.tenants.Settings(ctx, peek.CompanyID)
	if err != nil {
		return nil, err
	}

	var (
		result CancelResult
		batch  *kardex.Batch
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, txr TxRepository) error {
		doc, err := txr.GetDocumentForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("%w: document %d", ErrNotFound, documentID)
		}
		if !documents.CanCancel(doc.State) {
			return fmt.Errorf("%w: state is %s", ErrNotCancelable, doc.State)
		}

		originals, err := txr.ListEntriesByDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		if err := s.checkReversible(doc, originals); err != nil {
			return err
		}

		// One-shot guard against a racing double-cancel: the cancellation
		// hash occupies the same unique index as posting hashes.
		cancelHash := CancellationHash(doc)
		if exists, err := txr.DocumentExistsByHash(ctx, cancelHash); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: already canceled", ErrNotCancelable)
		}

		formal := s.requiresFormalNote(settings, doc)
		var reversal *documents.Document
		var entries []ledger.Entry
		if formal {
			reversal, entries, err = s.postCreditNote(ctx, txr, settings, doc, originals, cancelHash)
		} else {
			reversal = doc
			poster := ledger.NewPoster(txr, ledger.PointsRatio{})
			entries, err = poster.Invert(ctx, doc, originals)
		}
		if err != nil {
			return err
		}

		batch, err = s.reverseKardex(ctx, txr, settings, doc)
		if err != nil {
			return err
		}

		relatedRef := ""
		if formal {
			relatedRef = reversal.FullNumber(settings.Policy.SeriesPrefix, settings.Policy.NumberPadWidth)
		}
		if err := txr.MarkCanceled(ctx, doc.ID, reason, relatedRef); err != nil {
			return err
		}
		doc.State = documents.StateCanceled
		doc.Balance = decimal.Zero
		doc.CancelReason = &reason
		if relatedRef != "" {
			doc.RelatedDocuments = append(doc.RelatedDocuments, relatedRef)
		}

		if err := s.markDispatchStatuses(ctx, txr, settings, doc, batch); err != nil {
			return err
		}

		result = CancelResult{
			Original:      doc,
			Reversal:      reversal,
			FormalNote:    formal,
			LedgerEntries: len(entries),
		}
		if batch != nil {
			result.KardexLines = len(batch.Lines)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordCancellation("rejected")
		return nil, err
	}

	s.afterCommit(ctx, settings, result.Original, batch, notify.EventCanceled)
	result.KardexStatus = result.Original.KardexStatus

	mode := "inversion"
	if result.FormalNote {
		mode = "credit_note"
	}
	s.metrics.RecordCancellation(mode)
	s.logger.Info("document canceled",
		slog.Int64("document_id", result.Original.ID),
		slog.String("mode", mode),
		slog.Int("ledger_entries", result.LedgerEntries),
	)
	return &result, nil
}

// requiresFormalNote decides the cancellation mode. The fiscal regime path
// only applies to finalized fiscal documents the authority has not yet
// accepted; everything else is a raw inversion.
func (s *Service) requiresFormalNote(settings *tenant.Settings, doc *documents.Document) bool {
	if doc.Type.IsNote() || doc.State != documents.StateFinalized {
		return false
	}
	if !settings.Policy.RequireFormalCreditNote {
		return false
	}
	if !settings.TypeFor(doc.Type).RequiresCreditNote {
		return false
	}
	return doc.TaxStatus != documents.TaxValidated
}

// checkReversible blocks cancellation when the original's effects cannot be
// reconstructed exactly.
func (s *Service) checkReversible(doc *documents.Document, originals []ledger.Entry) error {
	if doc.TotalAmount.IsPositive() && len(doc.Lines) == 0 {
		return fmt.Errorf("%w: document %d has no line snapshot", ErrReversalInconsistency, doc.ID)
	}
	settled := doc.TotalAmount.Sub(doc.DueAmount)
	if settled.IsPositive() && len(originals) == 0 {
		return fmt.Errorf("%w: document %d settled %s but has no ledger entries", ErrReversalInconsistency, doc.ID, settled)
	}
	return nil
}

// postCreditNote builds the mirror document and posts it through the same
// allocate/state/ledger chain as any other posting.
func (s *Service) postCreditNote(ctx context.Context, txr TxRepository, settings *tenant.Settings, doc *documents.Document, originals []ledger.Entry, cancelHash uuid.UUID) (*documents.Document, []ledger.Entry, error) {
	key := series.Key{
		CompanyID:    doc.CompanyID,
		SubsidiaryID: doc.SubsidiaryID,
		TerminalID:   doc.TerminalID,
		DocumentType: documents.TypeCreditNote,
		NoteType:     string(doc.Type),
	}
	alloc, err := series.NewAllocator(txr).Allocate(ctx, key, nil)
	if err != nil {
		return nil, nil, err
	}

	state, err := documents.NoteInitialState(doc.State)
	if err != nil {
		return nil, nil, err
	}

	note := &documents.Document{
		ExternalID:       uuid.New(),
		CompanyID:        doc.CompanyID,
		SubsidiaryID:     doc.SubsidiaryID,
		TerminalID:       doc.TerminalID,
		CustomerID:       doc.CustomerID,
		Type:             documents.TypeCreditNote,
		State:            state,
		Series:           alloc.Series,
		Number:           alloc.Number,
		Currency:         doc.Currency,
		ExchangeRate:     doc.ExchangeRate,
		Subtotal:         doc.Subtotal.Neg(),
		TaxAmount:        doc.TaxAmount.Neg(),
		TotalAmount:      doc.TotalAmount.Neg(),
		DueAmount:        decimal.Zero,
		Balance:          decimal.Zero,
		PaymentMethod:    doc.PaymentMethod,
		ParentDocumentID: &doc.ID,
		DuplicateHash:    cancelHash,
		TaxStatus:        documents.TaxUnsent,
		KardexStatus:     documents.DispatchNone,
		NotifyStatus:     documents.DispatchNone,
		IssuedAt:         s.now(),
	}
	for _, line := range doc.Lines {
		mirrored := line
		mirrored.ID = 0
		note.Lines = append(note.Lines, mirrored)
	}

	id, err := txr.InsertDocument(ctx, note)
	if err != nil {
		return nil, nil, err
	}
	note.ID = id
	for i := range note.Lines {
		note.Lines[i].DocumentID = id
		lineID, err := txr.InsertLine(ctx, &note.Lines[i])
		if err != nil {
			return nil, nil, err
		}
		note.Lines[i].ID = lineID
	}

	// The note's ledger effect mirrors the original breakdown with the
	// credit-note sign: offsetting entries against the same registers and a
	// symmetric debt decrement for the deferred portion.
	breakdown := reconstructBreakdown(doc, originals)
	poster := ledger.NewPoster(txr, ledger.PointsRatio{})
	entries, err := poster.Post(ctx, note, breakdown)
	if err != nil {
		return nil, nil, err
	}
	return note, entries, nil
}

// reconstructBreakdown rebuilds the original payment breakdown from the
// committed ledger entries and the recorded deferred amount.
func reconstructBreakdown(doc *documents.Document, originals []ledger.Entry) []ledger.PaymentLine {
	var breakdown []ledger.PaymentLine
	for _, e := range originals {
		method := documents.PayCash
		if e.RegisterKind == ledger.RegisterBank {
			method = documents.PayBank
		}
		breakdown = append(breakdown, ledger.PaymentLine{
			Method:     string(method),
			RegisterID: e.RegisterID,
			Amount:     e.Amount.Abs(),
		})
	}
	if doc.DueAmount.IsPositive() {
		breakdown = append(breakdown, ledger.PaymentLine{
			Method: string(documents.PayCredit),
			Amount: doc.DueAmount,
		})
	}
	return breakdown
}

// reverseKardex derives the cancellation batch: the stored original batch
// negated, or a fresh emission with flipped direction when the original
// predates batch storage.
func (s *Service) reverseKardex(ctx context.Context, txr TxRepository, settings *tenant.Settings, doc *documents.Document) (*kardex.Batch, error) {
	original, err := txr.GetKardexBatchByDocument(ctx, doc.ID, false)
	if err != nil {
		return nil, err
	}
	if original == nil {
		ts := settings.TypeFor(doc.Type)
		if !ts.AffectsStock {
			return nil, nil
		}
		emitted := kardex.NewEmitter(settings.Policy.BaseCurrency).Emit(doc, kardex.TypeSettings{AffectsStock: ts.AffectsStock, RequiresWarehouse: ts.RequiresWarehouse})
		if emitted == nil {
			return nil, nil
		}
		original = emitted
	}
	return s.persistKardex(ctx, txr, settings, doc, original)
}
