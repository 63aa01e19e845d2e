package posting

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/kardex"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/notify"
	"github.com/meridian-erp/meridian-erp/internal/series"
	"github.com/meridian-erp/meridian-erp/internal/tenant"
)

type debtKey struct {
	holder   ledger.HolderKind
	holderID int64
	currency string
}

// memoryRepo is an in-memory Repository and TxRepository. WithTx snapshots
// the whole store so a failed unit of work observably rolls back, the same
// way the real transaction does.
type memoryRepo struct {
	counters  map[series.Key]*series.Counter
	registers map[int64]*ledger.Register
	entries   []ledger.Entry
	debts     map[debtKey]*ledger.DebtAggregate
	points    map[int64]int64
	docs      map[int64]*documents.Document
	batches   map[int64]*kardex.Batch
	hashes    map[uuid.UUID]int64

	nextDocID   int64
	nextLineID  int64
	nextEntryID int64
	nextBatchID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		counters:  make(map[series.Key]*series.Counter),
		registers: make(map[int64]*ledger.Register),
		debts:     make(map[debtKey]*ledger.DebtAggregate),
		points:    make(map[int64]int64),
		docs:      make(map[int64]*documents.Document),
		batches:   make(map[int64]*kardex.Batch),
		hashes:    make(map[uuid.UUID]int64),
	}
}

func cloneDoc(d *documents.Document) *documents.Document {
	cp := *d
	cp.Lines = append([]documents.LineItem(nil), d.Lines...)
	cp.RelatedDocuments = append([]string(nil), d.RelatedDocuments...)
	return &cp
}

func cloneBatch(b *kardex.Batch) *kardex.Batch {
	cp := *b
	cp.Lines = append([]kardex.Line(nil), b.Lines...)
	cp.Warnings = append([]string(nil), b.Warnings...)
	return &cp
}

func (r *memoryRepo) clone() *memoryRepo {
	c := newMemoryRepo()
	for k, v := range r.counters {
		cv := *v
		c.counters[k] = &cv
	}
	for k, v := range r.registers {
		cv := *v
		c.registers[k] = &cv
	}
	c.entries = append([]ledger.Entry(nil), r.entries...)
	for k, v := range r.debts {
		cv := *v
		c.debts[k] = &cv
	}
	for k, v := range r.points {
		c.points[k] = v
	}
	for k, v := range r.docs {
		c.docs[k] = cloneDoc(v)
	}
	for k, v := range r.batches {
		c.batches[k] = cloneBatch(v)
	}
	for k, v := range r.hashes {
		c.hashes[k] = v
	}
	c.nextDocID, c.nextLineID, c.nextEntryID, c.nextBatchID = r.nextDocID, r.nextLineID, r.nextEntryID, r.nextBatchID
	return c
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.clone()
	if err := fn(ctx, r); err != nil {
		*r = *snap
		return err
	}
	return nil
}

// series.Store

func (r *memoryRepo) LockCounter(ctx context.Context, key series.Key) (*series.Counter, error) {
	c, ok := r.counters[key]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memoryRepo) SaveCounter(ctx context.Context, c *series.Counter) error {
	cp := *c
	r.counters[c.Key] = &cp
	return nil
}

// ledger.Store

func (r *memoryRepo) LockRegister(ctx context.Context, registerID int64) (*ledger.Register, error) {
	reg, ok := r.registers[registerID]
	if !ok {
		return nil, nil
	}
	cp := *reg
	return &cp, nil
}

func (r *memoryRepo) LastRunningBalance(ctx context.Context, registerID int64, currency string) (decimal.Decimal, error) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.RegisterID == registerID && e.Currency == currency {
			return e.RunningBalance, nil
		}
	}
	return decimal.Zero, nil
}

func (r *memoryRepo) InsertEntry(ctx context.Context, e *ledger.Entry) error {
	r.nextEntryID++
	e.ID = r.nextEntryID
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memoryRepo) UpsertDebt(ctx context.Context, companyID int64, holder ledger.HolderKind, holderID int64, currency string, salesDelta, debtsDelta decimal.Decimal) error {
	k := debtKey{holder: holder, holderID: holderID, currency: currency}
	agg, ok := r.debts[k]
	if !ok {
		agg = &ledger.DebtAggregate{CompanyID: companyID, HolderKind: holder, HolderID: holderID, Currency: currency}
		r.debts[k] = agg
	}
	agg.TotalSales = agg.TotalSales.Add(salesDelta)
	agg.TotalDebts = agg.TotalDebts.Add(debtsDelta)
	return nil
}

func (r *memoryRepo) AddCustomerPoints(ctx context.Context, customerID int64, points int64) error {
	r.points[customerID] += points
	return nil
}

// documents

func (r *memoryRepo) DocumentExistsByHash(ctx context.Context, hash uuid.UUID) (bool, error) {
	_, ok := r.hashes[hash]
	return ok, nil
}

func (r *memoryRepo) InsertDocument(ctx context.Context, doc *documents.Document) (int64, error) {
	if _, ok := r.hashes[doc.DuplicateHash]; ok {
		return 0, fmt.Errorf("%w: hash %s", ErrDuplicatePosting, doc.DuplicateHash)
	}
	r.nextDocID++
	stored := cloneDoc(doc)
	stored.ID = r.nextDocID
	stored.Lines = nil
	r.docs[stored.ID] = stored
	r.hashes[doc.DuplicateHash] = stored.ID
	return stored.ID, nil
}

func (r *memoryRepo) InsertLine(ctx context.Context, line *documents.LineItem) (int64, error) {
	r.nextLineID++
	line.ID = r.nextLineID
	doc, ok := r.docs[line.DocumentID]
	if !ok {
		return 0, fmt.Errorf("document %d not found", line.DocumentID)
	}
	doc.Lines = append(doc.Lines, *line)
	return line.ID, nil
}

func (r *memoryRepo) GetDocumentForUpdate(ctx context.Context, id int64) (*documents.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	return cloneDoc(doc), nil
}

func (r *memoryRepo) ListEntriesByDocument(ctx context.Context, documentID int64) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range r.entries {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateDocumentState(ctx context.Context, documentID int64, state documents.State) error {
	doc, ok := r.docs[documentID]
	if !ok {
		return fmt.Errorf("document %d not found", documentID)
	}
	doc.State = state
	return nil
}

func (r *memoryRepo) ApplyCorrection(ctx context.Context, parentID int64, balanceDelta decimal.Decimal, relatedRef string) error {
	doc, ok := r.docs[parentID]
	if !ok {
		return fmt.Errorf("document %d not found", parentID)
	}
	doc.Balance = doc.Balance.Add(balanceDelta)
	doc.RelatedDocuments = append(doc.RelatedDocuments, relatedRef)
	return nil
}

func (r *memoryRepo) MarkCanceled(ctx context.Context, documentID int64, reason string, relatedRef string) error {
	doc, ok := r.docs[documentID]
	if !ok {
		return fmt.Errorf("document %d not found", documentID)
	}
	now := time.Now()
	doc.State = documents.StateCanceled
	doc.Balance = decimal.Zero
	doc.CancelReason = &reason
	doc.CanceledAt = &now
	if relatedRef != "" {
		doc.RelatedDocuments = append(doc.RelatedDocuments, relatedRef)
	}
	return nil
}

func (r *memoryRepo) SetDispatchStatus(ctx context.Context, documentID int64, kardexStatus, notifyStatus documents.DispatchStatus) error {
	doc, ok := r.docs[documentID]
	if !ok {
		return fmt.Errorf("document %d not found", documentID)
	}
	doc.KardexStatus = kardexStatus
	doc.NotifyStatus = notifyStatus
	return nil
}

// kardex batches

func (r *memoryRepo) GetKardexBatchByDocument(ctx context.Context, documentID int64, flagCancel bool) (*kardex.Batch, error) {
	var best *kardex.Batch
	for _, b := range r.batches {
		if b.DocumentID == documentID && b.FlagCancel == flagCancel {
			if best == nil || b.ID > best.ID {
				best = b
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneBatch(best), nil
}

func (r *memoryRepo) InsertKardexBatch(ctx context.Context, batch *kardex.Batch) (int64, error) {
	r.nextBatchID++
	stored := cloneBatch(batch)
	stored.ID = r.nextBatchID
	r.batches[stored.ID] = stored
	return stored.ID, nil
}

// pool-level reads and worker updates

func (r *memoryRepo) GetDocument(ctx context.Context, id int64) (*documents.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	return cloneDoc(doc), nil
}

func (r *memoryRepo) GetKardexBatch(ctx context.Context, id int64) (*kardex.Batch, error) {
	b, ok := r.batches[id]
	if !ok {
		return nil, nil
	}
	return cloneBatch(b), nil
}

func (r *memoryRepo) ListPendingKardexBatches(ctx context.Context, limit int) ([]kardex.Batch, error) {
	var out []kardex.Batch
	for _, b := range r.batches {
		if b.Status == kardex.BatchPending {
			out = append(out, *cloneBatch(b))
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkBatchDispatched(ctx context.Context, batchID int64) error {
	b, ok := r.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %d not found", batchID)
	}
	now := time.Now()
	b.Status = kardex.BatchDispatched
	b.DispatchedAt = &now
	pending := false
	for _, other := range r.batches {
		if other.DocumentID == b.DocumentID && other.Status == kardex.BatchPending {
			pending = true
		}
	}
	if !pending {
		if doc, ok := r.docs[b.DocumentID]; ok {
			doc.KardexStatus = documents.DispatchDispatched
		}
	}
	return nil
}

func (r *memoryRepo) MarkBatchFailed(ctx context.Context, batchID int64) error {
	b, ok := r.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %d not found", batchID)
	}
	b.Status = kardex.BatchFailed
	return nil
}

func (r *memoryRepo) SetNotifyDispatched(ctx context.Context, documentID int64) error {
	doc, ok := r.docs[documentID]
	if !ok {
		return fmt.Errorf("document %d not found", documentID)
	}
	doc.NotifyStatus = documents.DispatchDispatched
	return nil
}

func (r *memoryRepo) SetTaxStatus(ctx context.Context, documentID int64, status documents.TaxStatus) error {
	doc, ok := r.docs[documentID]
	if !ok {
		return fmt.Errorf("document %d not found", documentID)
	}
	doc.TaxStatus = status
	return nil
}

func (r *memoryRepo) ListDocuments(ctx context.Context, companyID int64, limit, offset int) ([]documents.Document, int, error) {
	var all []documents.Document
	for _, d := range r.docs {
		if d.CompanyID == companyID {
			all = append(all, *cloneDoc(d))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

// collaborator fakes

type staticTenant struct {
	settings *tenant.Settings
}

func (s staticTenant) Settings(ctx context.Context, companyID int64) (*tenant.Settings, error) {
	return s.settings, nil
}

type recordingDispatcher struct {
	kardexIDs  []int64
	notified   []notify.Event
	taxIDs     []int64
	failKardex bool
}

func (d *recordingDispatcher) EnqueueKardex(ctx context.Context, batchID int64) error {
	if d.failKardex {
		return fmt.Errorf("queue unavailable")
	}
	d.kardexIDs = append(d.kardexIDs, batchID)
	return nil
}

func (d *recordingDispatcher) EnqueueNotify(ctx context.Context, ev notify.Event, documentID int64) error {
	d.notified = append(d.notified, ev)
	return nil
}

func (d *recordingDispatcher) EnqueueTaxSubmit(ctx context.Context, documentID int64) error {
	d.taxIDs = append(d.taxIDs, documentID)
	return nil
}

func dec(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

func testSettings() *tenant.Settings {
	return &tenant.Settings{
		Policy: tenant.PostingPolicy{
			CompanyID:               1,
			RequireFormalCreditNote: true,
			CreditDispatchDeferred:  true,
			NumberPadWidth:          8,
			BaseCurrency:            "PEN",
		},
		Types: map[documents.DocumentType]tenant.TypeSettings{},
	}
}

var testClock = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, settings *tenant.Settings) (*Service, *memoryRepo, *recordingDispatcher) {
	t.Helper()
	repo := newMemoryRepo()
	dispatcher := &recordingDispatcher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, staticTenant{settings: settings}, dispatcher, logger, nil)
	svc.now = func() time.Time { return testClock }

	invoiceKey := series.Key{CompanyID: 1, SubsidiaryID: 1, TerminalID: 1, DocumentType: documents.TypeInvoice}
	repo.counters[invoiceKey] = &series.Counter{ID: 1, Key: invoiceKey, Series: "F001"}
	noteKey := series.Key{CompanyID: 1, SubsidiaryID: 1, TerminalID: 1, DocumentType: documents.TypeCreditNote, NoteType: string(documents.TypeInvoice)}
	repo.counters[noteKey] = &series.Counter{ID: 2, Key: noteKey, Series: "FC01"}
	quoteKey := series.Key{CompanyID: 1, SubsidiaryID: 1, TerminalID: 1, DocumentType: documents.TypeQuotation}
	repo.counters[quoteKey] = &series.Counter{ID: 3, Key: quoteKey, Series: "COT1"}

	repo.registers[1] = &ledger.Register{ID: 1, CompanyID: 1, Kind: ledger.RegisterCash, Currency: "PEN", Name: "Caja"}
	repo.registers[2] = &ledger.Register{ID: 2, CompanyID: 1, Kind: ledger.RegisterBank, Currency: "PEN", Name: "BCP"}
	return svc, repo, dispatcher
}

func customer(id int64) *int64 { return &id }

func cashSaleRequest(amount string) PostRequest {
	return PostRequest{
		CompanyID:    1,
		SubsidiaryID: 1,
		TerminalID:   1,
		CustomerID:   customer(7),
		DocumentType: documents.TypeInvoice,
		Currency:     "PEN",
		Lines: []LineRequest{
			{ProductID: 5, WarehouseID: customer(2), Description: "Widget", Quantity: dec("1"), UnitPrice: dec(amount), UnitCost: dec("60")},
		},
		PaymentBreakdown: []ledger.PaymentLine{
			{Method: "CASH", RegisterID: 1, Amount: dec(amount)},
		},
	}
}

func creditSaleRequest(amount string) PostRequest {
	req := cashSaleRequest(amount)
	req.PaymentBreakdown = nil
	return req
}

func TestPostCashSaleFinalizesAndChainsBalance(t *testing.T) {
	ctx := context.Background()
	svc, repo, dispatcher := newTestService(t, testSettings())
	// The drawer already holds 500 from earlier activity.
	repo.entries = append(repo.entries, ledger.Entry{ID: 900, RegisterID: 1, Currency: "PEN", Amount: dec("500"), RunningBalance: dec("500")})
	repo.nextEntryID = 900

	result, err := svc.Post(ctx, cashSaleRequest("100"))
	require.NoError(t, err)

	doc := result.Document
	require.Equal(t, documents.StateFinalized, doc.State)
	require.Equal(t, "F001", doc.Series)
	require.Equal(t, int64(1), doc.Number)
	require.True(t, doc.TotalAmount.Equal(dec("100")))
	require.True(t, doc.DueAmount.IsZero())
	require.Equal(t, documents.PayCash, doc.PaymentMethod)
	require.Equal(t, 1, result.LedgerEntries)

	entries, err := repo.ListEntriesByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].RunningBalance.Equal(dec("600")))

	// The movement batch committed pending and was handed to the queue.
	require.Equal(t, documents.DispatchPending, result.KardexStatus)
	require.Len(t, dispatcher.kardexIDs, 1)
	require.Equal(t, []notify.Event{notify.EventPosted}, dispatcher.notified)
	// A finalized fiscal document also goes to the tax authority.
	require.Equal(t, []int64{doc.ID}, dispatcher.taxIDs)
}

func TestPostCreditSaleDefersDelivery(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t, testSettings())

	result, err := svc.Post(ctx, creditSaleRequest("250"))
	require.NoError(t, err)

	doc := result.Document
	require.Equal(t, documents.StateToDeliver, doc.State)
	require.Equal(t, documents.PayCredit, doc.PaymentMethod)
	require.True(t, doc.DueAmount.Equal(dec("250")))
	require.Zero(t, result.LedgerEntries, "credit sales write no register entries")

	cust := repo.debts[debtKey{holder: ledger.HolderCustomer, holderID: 7, currency: "PEN"}]
	require.NotNil(t, cust)
	require.True(t, cust.TotalDebts.Equal(dec("250")))
	sub := repo.debts[debtKey{holder: ledger.HolderSubsidiary, holderID: 1, currency: "PEN"}]
	require.NotNil(t, sub)
	require.True(t, sub.TotalDebts.Equal(dec("250")))
}

func TestPostCreditSaleFinalizesWhenNotDeferred(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.Policy.CreditDispatchDeferred = false
	svc, _, _ := newTestService(t, settings)

	result, err := svc.Post(ctx, creditSaleRequest("250"))
	require.NoError(t, err)
	require.Equal(t, documents.StateFinalized, result.Document.State)
}

func TestPostQuotationHasNoEffects(t *testing.T) {
	ctx := context.Background()
	svc, repo, dispatcher := newTestService(t, testSettings())

	req := creditSaleRequest("100")
	req.DocumentType = documents.TypeQuotation
	result, err := svc.Post(ctx, req)
	require.NoError(t, err)

	require.Equal(t, documents.StateInitiated, result.Document.State)
	require.Zero(t, result.LedgerEntries)
	require.Zero(t, result.KardexLines)
	require.Empty(t, repo.entries)
	require.Empty(t, repo.batches)
	require.Empty(t, dispatcher.notified, "drafts are not announced")
}

func TestPostNumbersAreMonotonic(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, testSettings())

	for want := int64(1); want <= 3; want++ {
		req := cashSaleRequest("100")
		online := testClock.Add(time.Duration(want) * time.Minute)
		req.DateOnline = &online
		result, err := svc.Post(ctx, req)
		require.NoError(t, err)
		require.Equal(t, want, result.Document.Number)
	}
}

func TestPostDuplicateRequestIsRejectedWithoutBurningANumber(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, testSettings())

	req := cashSaleRequest("100")
	online := testClock
	req.DateOnline = &online
	first, err := svc.Post(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Document.Number)

	// The retry carries the same request identity.
	_, err = svc.Post(ctx, req)
	require.ErrorIs(t, err, ErrDuplicatePosting)

	// The aborted posting rolled its allocation back.
	next := cashSaleRequest("100")
	later := testClock.Add(time.Hour)
	next.DateOnline = &later
	result, err := svc.Post(ctx, next)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Document.Number)
}

func TestPostRejectsBreakdownMismatch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, testSettings())

	req := cashSaleRequest("100")
	req.PaymentBreakdown = []ledger.PaymentLine{
		{Method: "CASH", RegisterID: 1, Amount: dec("90")},
	}
	_, err := svc.Post(ctx, req)
	require.ErrorIs(t, err, ErrValidation)
}

func TestPostRejectsUnconfiguredSeries(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, testSettings())

	req := cashSaleRequest("100")
	req.TerminalID = 99
	_, err := svc.Post(ctx, req)
	require.ErrorIs(t, err, series.ErrSeriesNotConfigured)
}

func TestPostLedgerMismatchRollsBackDocument(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t, testSettings())

	req := cashSaleRequest("100")
	req.PaymentBreakdown[0].RegisterID = 42 // nonexistent register
	_, err := svc.Post(ctx, req)
	require.ErrorIs(t, err, ledger.ErrLedgerMismatch)

	require.Empty(t, repo.docs, "failed posting must leave nothing behind")
	require.Empty(t, repo.entries)
	invoiceKey := series.Key{CompanyID: 1, SubsidiaryID: 1, TerminalID: 1, DocumentType: documents.TypeInvoice}
	require.Zero(t, repo.counters[invoiceKey].NextNumber, "counter rolls back with the transaction")
}

func TestPostAccruesLoyaltyPoints(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.Policy.PointsBase = dec("10")
	settings.Policy.PointsPoints = dec("1")
	svc, repo, _ := newTestService(t, settings)

	_, err := svc.Post(ctx, cashSaleRequest("97"))
	require.NoError(t, err)
	require.Equal(t, int64(9), repo.points[7])
}

func TestPostSkipDownstreamDispatchPolicy(t *testing.T) {
	ctx := context.Background()
	settings := testSettings()
	settings.Policy.SkipDownstreamDispatch = true
	svc, repo, dispatcher := newTestService(t, settings)

	result, err := svc.Post(ctx, cashSaleRequest("100"))
	require.NoError(t, err)

	require.Equal(t, documents.DispatchNone, result.KardexStatus)
	require.Equal(t, documents.DispatchNone, result.NotifyStatus)
	require.Empty(t, dispatcher.kardexIDs)
	require.Empty(t, dispatcher.notified)
	// The batch is still persisted for audit, already marked dispatched.
	require.Len(t, repo.batches, 1)
	for _, b := range repo.batches {
		require.Equal(t, kardex.BatchDispatched, b.Status)
	}
}

func TestPostEnqueueFailureDegradesToPending(t *testing.T) {
	ctx := context.Background()
	svc, repo, dispatcher := newTestService(t, testSettings())
	dispatcher.failKardex = true

	result, err := svc.Post(ctx, cashSaleRequest("100"))
	require.NoError(t, err, "a committed posting never fails on dispatch")

	require.Equal(t, documents.DispatchPending, result.KardexStatus)
	for _, b := range repo.batches {
		require.Equal(t, kardex.BatchPending, b.Status)
	}
}

func TestConfirmDelivery(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, testSettings())

	posted, err := svc.Post(ctx, creditSaleRequest("250"))
	require.NoError(t, err)
	require.Equal(t, documents.StateToDeliver, posted.Document.State)

	doc, err := svc.ConfirmDelivery(ctx, posted.Document.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StateFinalized, doc.State)

	// Delivering twice is an illegal transition.
	_, err = svc.ConfirmDelivery(ctx, posted.Document.ID)
	require.ErrorIs(t, err, documents.ErrIllegalTransition)
}

func TestConfirmDeliveryUnknownDocument(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, testSettings())

	_, err := svc.ConfirmDelivery(ctx, 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostNoteRequiresParent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, testSettings())

	req := cashSaleRequest("100")
	req.DocumentType = documents.TypeCreditNote
	_, err := svc.Post(ctx, req)
	require.ErrorIs(t, err, ErrValidation)
}

func TestPostCreditNoteSettlesParentBalance(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t, testSettings())

	sale, err := svc.Post(ctx, cashSaleRequest("100"))
	require.NoError(t, err)
	require.True(t, sale.Document.Balance.Equal(dec("100")))

	note := cashSaleRequest("40")
	note.DocumentType = documents.TypeCreditNote
	note.ParentDocumentID = &sale.Document.ID
	result, err := svc.Post(ctx, note)
	require.NoError(t, err)
	require.Equal(t, documents.StateFinalized, result.Document.State)

	// The parent's open balance drops by the note amount and the note's
	// number is recorded against it.
	parent, err := repo.GetDocument(ctx, sale.Document.ID)
	require.NoError(t, err)
	require.True(t, parent.Balance.Equal(dec("60")), "parent balance is %s", parent.Balance)
	require.Contains(t, parent.RelatedDocuments, "FC01-00000001")

	// The refund leaves the drawer at the settled amount.
	last := repo.entries[len(repo.entries)-1]
	require.True(t, last.Amount.Equal(dec("-40")))
	require.True(t, last.RunningBalance.Equal(dec("60")))

	// Returned goods re-enter stock.
	batch, err := repo.GetKardexBatchByDocument(ctx, result.Document.ID, false)
	require.NoError(t, err)
	require.Equal(t, kardex.DirectionIn, batch.TypeOperation)
}
