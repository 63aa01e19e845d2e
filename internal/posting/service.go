// Package posting turns a requested sale/purchase/order into an immutable,
// sequentially numbered fiscal document. Number allocation, the state
// decision, ledger effects and the kardex batch all commit in one unit of
// work; outbound dispatch to the kardex sink and notifications happens
// strictly after commit and degrades to a pending status on failure.
package posting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/kardex"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/notify"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/series"
	"github.com/meridian-erp/meridian-erp/internal/tenant"
)

// TenantSource provides posting settings per company.
type TenantSource interface {
	Settings(ctx context.Context, companyID int64) (*tenant.Settings, error)
}

// Dispatcher enqueues post-commit downstream work. Enqueue failures must
// never be treated as posting failures; the pending batch is retried by the
// worker's cron sweep.
type Dispatcher interface {
	EnqueueKardex(ctx context.Context, batchID int64) error
	EnqueueNotify(ctx context.Context, ev notify.Event, documentID int64) error
	EnqueueTaxSubmit(ctx context.Context, documentID int64) error
}

// Service orchestrates postings, deliveries and cancellations.
type Service struct {
	repo     Repository
	tenants  TenantSource
	dispatch Dispatcher
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewService constructs the posting service.
func NewService(repo Repository, tenants TenantSource, dispatch Dispatcher, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		repo:     repo,
		tenants:  tenants,
		dispatch: dispatch,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Post commits one posting request as a numbered document.
func (s *Service) Post(ctx context.Context, req PostRequest) (*PostResult, error) {
	started := s.now()
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	settings, err := s.tenants.Settings(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}

	var (
		result PostResult
		batch  *kardex.Batch
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, txr TxRepository) error {
		doc, entries, b, err := s.postLocked(ctx, txr, settings, req)
		if err != nil {
			return err
		}
		result.Document = doc
		result.LedgerEntries = len(entries)
		batch = b
		if b != nil {
			result.KardexLines = len(b.Lines)
			result.Warnings = b.Warnings
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordPosting(string(req.DocumentType), "rejected")
		return nil, err
	}

	s.afterCommit(ctx, settings, result.Document, batch, notify.EventPosted)
	result.KardexStatus = result.Document.KardexStatus
	result.NotifyStatus = result.Document.NotifyStatus

	s.metrics.RecordPosting(string(req.DocumentType), "committed")
	s.metrics.ObservePostingDuration(s.now().Sub(started))
	s.logger.Info("document posted",
		slog.String("type", string(result.Document.Type)),
		slog.String("number", result.Document.FullNumber(settings.Policy.SeriesPrefix, settings.Policy.NumberPadWidth)),
		slog.String("state", string(result.Document.State)),
		slog.Int("ledger_entries", result.LedgerEntries),
		slog.Int("kardex_lines", result.KardexLines),
	)
	return &result, nil
}

// ConfirmDelivery finalizes a credit sale that was deferred for dispatch.
func (s *Service) ConfirmDelivery(ctx context.Context, documentID int64) (*documents.Document, error) {
	var doc *documents.Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, txr TxRepository) error {
		var err error
		doc, err = txr.GetDocumentForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ErrNotFound
		}
		next, err := documents.Transition(doc.State, documents.EventDeliver)
		if err != nil {
			return err
		}
		doc.State = next
		return txr.UpdateDocumentState(ctx, doc.ID, next)
	})
	if err != nil {
		return nil, err
	}
	// The document only now reached FINALIZED, so the tax authority has not
	// seen it yet.
	if settings, serr := s.tenants.Settings(ctx, doc.CompanyID); serr == nil &&
		!settings.Policy.SkipDownstreamDispatch && settings.TypeFor(doc.Type).RequiresCreditNote {
		if terr := s.dispatch.EnqueueTaxSubmit(ctx, doc.ID); terr != nil {
			s.logger.Warn("tax submit enqueue failed",
				slog.Int64("document_id", doc.ID), slog.Any("error", terr))
			s.metrics.RecordDownstreamDegradation("tax")
		}
	}
	return doc, nil
}

// checkRequest performs the semantic validation the struct tags cannot.
func (s *Service) checkRequest(req PostRequest) error {
	if req.DocumentType.IsNote() && req.ParentDocumentID == nil {
		return fmt.Errorf("%w: %s requires a parent document", ErrValidation, req.DocumentType)
	}
	total := decimal.Zero
	for _, line := range req.Lines {
		if line.Quantity.IsNegative() || line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: negative quantity or price", ErrValidation)
		}
		total = total.Add(line.Quantity.Mul(line.UnitPrice)).Add(line.TaxAmount)
	}
	if len(req.PaymentBreakdown) > 0 {
		sum := decimal.Zero
		for _, p := range req.PaymentBreakdown {
			if p.Amount.IsNegative() {
				return fmt.Errorf("%w: negative payment line", ErrValidation)
			}
			sum = sum.Add(p.Amount)
		}
		if !sum.Equal(total) {
			return fmt.Errorf("%w: payment breakdown %s does not settle total %s", ErrValidation, sum, total)
		}
	}
	return nil
}

// postLocked runs the allocation, state decision, ledger posting and kardex
// emission inside txr.
func (s *Service) postLocked(ctx context.Context, txr TxRepository, settings *tenant.Settings, req PostRequest) (*documents.Document, []ledger.Entry, *kardex.Batch, error) {
	policy := settings.Policy

	// Series allocation takes the row lock that serializes concurrent
	// postings on the same key.
	key := series.Key{
		CompanyID:    req.CompanyID,
		SubsidiaryID: req.SubsidiaryID,
		TerminalID:   req.TerminalID,
		DocumentType: req.DocumentType,
	}
	var parent *documents.Document
	if req.ParentDocumentID != nil {
		var err error
		parent, err = txr.GetDocumentForUpdate(ctx, *req.ParentDocumentID)
		if err != nil {
			return nil, nil, nil, err
		}
		if parent == nil {
			return nil, nil, nil, fmt.Errorf("%w: parent document %d", ErrNotFound, *req.ParentDocumentID)
		}
		if req.DocumentType.IsNote() {
			key.NoteType = string(parent.Type)
		}
	}
	alloc, err := series.NewAllocator(txr).Allocate(ctx, key, req.ExplicitNumber)
	if err != nil {
		return nil, nil, nil, err
	}

	issuedAt := s.now()
	hashDate := issuedAt
	if req.DateOnline != nil {
		issuedAt = *req.DateOnline
		hashDate = *req.DateOnline
	}
	hash := DuplicateHash(req.TerminalID, req.CompanyID, req.SubsidiaryID, req.CustomerID, req.DocumentType, alloc.Series, hashDate)
	exists, err := txr.DocumentExistsByHash(ctx, hash)
	if err != nil {
		return nil, nil, nil, err
	}
	if exists {
		return nil, nil, nil, fmt.Errorf("%w: hash %s", ErrDuplicatePosting, hash)
	}

	breakdown := req.PaymentBreakdown
	doc, err := s.buildDocument(req, settings, parent, alloc, hash, issuedAt, &breakdown)
	if err != nil {
		return nil, nil, nil, err
	}

	id, err := txr.InsertDocument(ctx, doc)
	if err != nil {
		return nil, nil, nil, err
	}
	doc.ID = id
	for i := range doc.Lines {
		doc.Lines[i].DocumentID = id
		lineID, err := txr.InsertLine(ctx, &doc.Lines[i])
		if err != nil {
			return nil, nil, nil, err
		}
		doc.Lines[i].ID = lineID
	}

	// A note settles against its parent in the same transaction: a credit
	// note reduces the parent's open balance, a debit note raises it, and
	// the note's number joins the parent's related documents.
	if parent != nil && doc.Type.IsNote() {
		delta := doc.TotalAmount
		if doc.Type == documents.TypeCreditNote {
			delta = delta.Neg()
		}
		ref := doc.FullNumber(policy.SeriesPrefix, policy.NumberPadWidth)
		if err := txr.ApplyCorrection(ctx, parent.ID, delta, ref); err != nil {
			return nil, nil, nil, err
		}
		parent.Balance = parent.Balance.Add(delta)
		parent.RelatedDocuments = append(parent.RelatedDocuments, ref)
	}

	// Drafts have no ledger or kardex effect.
	if doc.State == documents.StateInitiated {
		return doc, nil, nil, nil
	}

	poster := ledger.NewPoster(txr, ledger.PointsRatio{Base: policy.PointsBase, Points: policy.PointsPoints})
	entries, err := poster.Post(ctx, doc, breakdown)
	if err != nil {
		return nil, nil, nil, err
	}

	batch, err := s.persistKardex(ctx, txr, settings, doc, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := s.markDispatchStatuses(ctx, txr, settings, doc, batch); err != nil {
		return nil, nil, nil, err
	}
	return doc, entries, batch, nil
}

func (s *Service) buildDocument(req PostRequest, settings *tenant.Settings, parent *documents.Document, alloc series.Allocation, hash uuid.UUID, issuedAt time.Time, breakdown *[]ledger.PaymentLine) (*documents.Document, error) {
	var subtotal, taxAmount decimal.Decimal
	lines := make([]documents.LineItem, 0, len(req.Lines))
	for _, lr := range req.Lines {
		base := lr.Quantity.Mul(lr.UnitPrice)
		subtotal = subtotal.Add(base)
		taxAmount = taxAmount.Add(lr.TaxAmount)
		lines = append(lines, documents.LineItem{
			ProductID:   lr.ProductID,
			WarehouseID: lr.WarehouseID,
			BrandID:     lr.BrandID,
			Description: lr.Description,
			Quantity:    lr.Quantity,
			UnitPrice:   lr.UnitPrice,
			UnitCost:    lr.UnitCost,
			TaxAmount:   lr.TaxAmount,
			LineTotal:   base.Add(lr.TaxAmount),
			IsService:   lr.IsService,
		})
	}
	total := subtotal.Add(taxAmount)

	// A settling document with no breakdown is a full credit sale.
	if len(*breakdown) == 0 && req.DocumentType != documents.TypeQuotation && total.IsPositive() {
		*breakdown = []ledger.PaymentLine{{Method: string(documents.PayCredit), Amount: total}}
	}

	state, err := s.initialState(req, settings, parent, *breakdown)
	if err != nil {
		return nil, err
	}

	due := decimal.Zero
	method := documents.PayCash
	for _, p := range *breakdown {
		if documents.PaymentMethod(p.Method) == documents.PayCredit {
			due = due.Add(p.Amount)
		} else if documents.PaymentMethod(p.Method) == documents.PayBank {
			method = documents.PayBank
		}
	}
	if due.IsPositive() {
		method = documents.PayCredit
	}

	doc := &documents.Document{
		ExternalID:    uuid.New(),
		CompanyID:     req.CompanyID,
		SubsidiaryID:  req.SubsidiaryID,
		TerminalID:    req.TerminalID,
		CustomerID:    req.CustomerID,
		Type:          req.DocumentType,
		State:         state,
		Series:        alloc.Series,
		Number:        alloc.Number,
		Currency:      req.Currency,
		ExchangeRate:  req.ExchangeRate,
		Subtotal:      subtotal,
		TaxAmount:     taxAmount,
		TotalAmount:   total,
		DueAmount:     due,
		Balance:       total,
		PaymentMethod: method,
		DuplicateHash: hash,
		TaxStatus:     documents.TaxUnsent,
		KardexStatus:  documents.DispatchNone,
		NotifyStatus:  documents.DispatchNone,
		IssuedAt:      issuedAt,
		Lines:         lines,
	}
	if parent != nil {
		doc.ParentDocumentID = &parent.ID
	}
	return doc, nil
}

func (s *Service) initialState(req PostRequest, settings *tenant.Settings, parent *documents.Document, breakdown []ledger.PaymentLine) (documents.State, error) {
	if req.DocumentType == documents.TypeQuotation {
		return documents.StateInitiated, nil
	}
	if req.DocumentType.IsNote() {
		if parent == nil {
			return "", fmt.Errorf("%w: note without parent", ErrValidation)
		}
		return documents.NoteInitialState(parent.State)
	}
	hasCredit := false
	for _, p := range breakdown {
		if documents.PaymentMethod(p.Method) == documents.PayCredit {
			hasCredit = true
			break
		}
	}
	if hasCredit && settings.Policy.CreditDispatchDeferred {
		return documents.Transition(documents.StateInitiated, documents.EventDefer)
	}
	return documents.Transition(documents.StateInitiated, documents.EventFinalize)
}

// persistKardex emits the movement batch for doc and stores it pending.
// When original is non-nil the batch is its exact negation (cancellation).
func (s *Service) persistKardex(ctx context.Context, txr TxRepository, settings *tenant.Settings, doc *documents.Document, original *kardex.Batch) (*kardex.Batch, error) {
	emitter := kardex.NewEmitter(settings.Policy.BaseCurrency)
	var batch *kardex.Batch
	if original != nil {
		batch = emitter.Reverse(doc, original)
	} else {
		ts := settings.TypeFor(doc.Type)
		batch = emitter.Emit(doc, kardex.TypeSettings{AffectsStock: ts.AffectsStock, RequiresWarehouse: ts.RequiresWarehouse})
	}
	if batch == nil {
		return nil, nil
	}
	if settings.Policy.SkipDownstreamDispatch {
		batch.Status = kardex.BatchDispatched
	}
	id, err := txr.InsertKardexBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	batch.ID = id
	return batch, nil
}

// markDispatchStatuses records the downstream expectations of a committed
// document inside the posting transaction.
func (s *Service) markDispatchStatuses(ctx context.Context, txr TxRepository, settings *tenant.Settings, doc *documents.Document, batch *kardex.Batch) error {
	kstatus := documents.DispatchNone
	if batch != nil && batch.Status == kardex.BatchPending {
		kstatus = documents.DispatchPending
	}
	nstatus := documents.DispatchNone
	if !settings.Policy.SkipDownstreamDispatch && doc.State != documents.StateInitiated {
		nstatus = documents.DispatchPending
	}
	doc.KardexStatus = kstatus
	doc.NotifyStatus = nstatus
	return txr.SetDispatchStatus(ctx, doc.ID, kstatus, nstatus)
}

// afterCommit dispatches downstream work for a committed document. This
// runs outside any transaction: a failure here degrades the result, never
// the committed posting.
func (s *Service) afterCommit(ctx context.Context, settings *tenant.Settings, doc *documents.Document, batch *kardex.Batch, ev notify.Event) {
	if settings.Policy.SkipDownstreamDispatch {
		return
	}
	if batch != nil && batch.Status == kardex.BatchPending {
		if err := s.dispatch.EnqueueKardex(ctx, batch.ID); err != nil {
			s.logger.Warn("kardex enqueue failed, batch stays pending",
				slog.Int64("batch_id", batch.ID), slog.Any("error", err))
			s.metrics.RecordDownstreamDegradation("kardex")
		}
	}
	if doc.State != documents.StateInitiated {
		if err := s.dispatch.EnqueueNotify(ctx, ev, doc.ID); err != nil {
			s.logger.Warn("notification enqueue failed",
				slog.Int64("document_id", doc.ID), slog.Any("error", err))
			s.metrics.RecordDownstreamDegradation("notify")
		}
	}
	// Freshly finalized fiscal documents go to the tax authority. Notes and
	// cancellations are reported through the original document's status.
	if ev == notify.EventPosted && doc.State == documents.StateFinalized && settings.TypeFor(doc.Type).RequiresCreditNote {
		if err := s.dispatch.EnqueueTaxSubmit(ctx, doc.ID); err != nil {
			s.logger.Warn("tax submit enqueue failed",
				slog.Int64("document_id", doc.ID), slog.Any("error", err))
			s.metrics.RecordDownstreamDegradation("tax")
		}
	}
}
