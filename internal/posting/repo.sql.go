package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/kardex"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/series"
)

// PGRepository provides PostgreSQL backed persistence for the posting
// engine.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction. Every store the posting
// components write through shares this transaction, so an error anywhere
// reverts the whole unit of work.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ----------------------------------------------------------------------------
// series.Store
// ----------------------------------------------------------------------------

func (t *txRepo) LockCounter(ctx context.Context, key series.Key) (*series.Counter, error) {
	var c series.Counter
	err := t.tx.QueryRow(ctx, `
		SELECT id, series, next_number
		FROM series_counters
		WHERE company_id = $1 AND subsidiary_id = $2 AND terminal_id = $3 AND document_type = $4 AND note_type = $5
		FOR UPDATE`,
		key.CompanyID, key.SubsidiaryID, key.TerminalID, string(key.DocumentType), key.NoteType).Scan(
		&c.ID, &c.Series, &c.NextNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Key = key
	return &c, nil
}

func (t *txRepo) SaveCounter(ctx context.Context, c *series.Counter) error {
	_, err := t.tx.Exec(ctx, `UPDATE series_counters SET next_number = $2, updated_at = now() WHERE id = $1`, c.ID, c.NextNumber)
	return err
}

// ----------------------------------------------------------------------------
// ledger.Store
// ----------------------------------------------------------------------------

func (t *txRepo) LockRegister(ctx context.Context, registerID int64) (*ledger.Register, error) {
	var reg ledger.Register
	var kind string
	err := t.tx.QueryRow(ctx, `
		SELECT id, company_id, kind, currency, name FROM registers WHERE id = $1 FOR UPDATE`,
		registerID).Scan(&reg.ID, &reg.CompanyID, &kind, &reg.Currency, &reg.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	reg.Kind = ledger.RegisterKind(kind)
	return &reg, nil
}

func (t *txRepo) LastRunningBalance(ctx context.Context, registerID int64, currency string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := t.tx.QueryRow(ctx, `
		SELECT running_balance FROM ledger_entries
		WHERE register_id = $1 AND currency = $2
		ORDER BY id DESC LIMIT 1`, registerID, currency).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return balance, nil
}

func (t *txRepo) InsertEntry(ctx context.Context, e *ledger.Entry) error {
	e.CreatedAt = time.Now()
	return t.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (company_id, register_id, register_kind, document_id, currency, movement_kind, amount, running_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		e.CompanyID, e.RegisterID, string(e.RegisterKind), e.DocumentID, e.Currency, string(e.MovementKind), e.Amount, e.RunningBalance, e.CreatedAt).Scan(&e.ID)
}

func (t *txRepo) UpsertDebt(ctx context.Context, companyID int64, holder ledger.HolderKind, holderID int64, currency string, salesDelta, debtsDelta decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO debt_aggregates (company_id, holder_kind, holder_id, currency, total_sales, total_debts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (company_id, holder_kind, holder_id, currency) DO UPDATE SET
		    total_sales = debt_aggregates.total_sales + EXCLUDED.total_sales,
		    total_debts = debt_aggregates.total_debts + EXCLUDED.total_debts`,
		companyID, string(holder), holderID, currency, salesDelta, debtsDelta)
	return err
}

func (t *txRepo) AddCustomerPoints(ctx context.Context, customerID int64, points int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE customers SET loyalty_points = loyalty_points + $2, updated_at = now() WHERE id = $1`, customerID, points)
	return err
}

// ----------------------------------------------------------------------------
// documents
// ----------------------------------------------------------------------------

const documentColumns = `id, external_id, company_id, subsidiary_id, terminal_id, customer_id, document_type, state,
	series, number, currency, exchange_rate, subtotal, tax_amount, total_amount, due_amount, balance,
	payment_method, parent_document_id, duplicate_hash, tax_status, kardex_status, notify_status,
	related_documents, cancel_reason, removed, issued_at, canceled_at, created_at, updated_at`

func scanDocument(row pgx.Row) (*documents.Document, error) {
	var d documents.Document
	var docType, state, method, taxStatus, kardexStatus, notifyStatus string
	err := row.Scan(&d.ID, &d.ExternalID, &d.CompanyID, &d.SubsidiaryID, &d.TerminalID, &d.CustomerID,
		&docType, &state, &d.Series, &d.Number, &d.Currency, &d.ExchangeRate, &d.Subtotal, &d.TaxAmount,
		&d.TotalAmount, &d.DueAmount, &d.Balance, &method, &d.ParentDocumentID, &d.DuplicateHash,
		&taxStatus, &kardexStatus, &notifyStatus, &d.RelatedDocuments, &d.CancelReason, &d.Removed,
		&d.IssuedAt, &d.CanceledAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Type = documents.DocumentType(docType)
	d.State = documents.State(state)
	d.PaymentMethod = documents.PaymentMethod(method)
	d.TaxStatus = documents.TaxStatus(taxStatus)
	d.KardexStatus = documents.DispatchStatus(kardexStatus)
	d.NotifyStatus = documents.DispatchStatus(notifyStatus)
	return &d, nil
}

func loadLines(ctx context.Context, q querier, documentID int64) ([]documents.LineItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, document_id, product_id, warehouse_id, brand_id, description, quantity, unit_price, unit_cost, tax_amount, line_total, is_service
		FROM document_lines WHERE document_id = $1 ORDER BY id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []documents.LineItem
	for rows.Next() {
		var l documents.LineItem
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.ProductID, &l.WarehouseID, &l.BrandID, &l.Description,
			&l.Quantity, &l.UnitPrice, &l.UnitCost, &l.TaxAmount, &l.LineTotal, &l.IsService); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (t *txRepo) DocumentExistsByHash(ctx context.Context, hash uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE duplicate_hash = $1)`, hash).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertDocument(ctx context.Context, doc *documents.Document) (int64, error) {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO documents (external_id, company_id, subsidiary_id, terminal_id, customer_id, document_type, state,
		    series, number, currency, exchange_rate, subtotal, tax_amount, total_amount, due_amount, balance,
		    payment_method, parent_document_id, duplicate_hash, tax_status, kardex_status, notify_status,
		    related_documents, removed, issued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		RETURNING id`,
		doc.ExternalID, doc.CompanyID, doc.SubsidiaryID, doc.TerminalID, doc.CustomerID, string(doc.Type), string(doc.State),
		doc.Series, doc.Number, doc.Currency, doc.ExchangeRate, doc.Subtotal, doc.TaxAmount, doc.TotalAmount, doc.DueAmount, doc.Balance,
		string(doc.PaymentMethod), doc.ParentDocumentID, doc.DuplicateHash, string(doc.TaxStatus), string(doc.KardexStatus), string(doc.NotifyStatus),
		doc.RelatedDocuments, doc.Removed, doc.IssuedAt, doc.CreatedAt, doc.UpdatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: hash %s", ErrDuplicatePosting, doc.DuplicateHash)
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) InsertLine(ctx context.Context, line *documents.LineItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO document_lines (document_id, product_id, warehouse_id, brand_id, description, quantity, unit_price, unit_cost, tax_amount, line_total, is_service)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		line.DocumentID, line.ProductID, line.WarehouseID, line.BrandID, line.Description, line.Quantity,
		line.UnitPrice, line.UnitCost, line.TaxAmount, line.LineTotal, line.IsService).Scan(&id)
	return id, err
}

func (t *txRepo) GetDocumentForUpdate(ctx context.Context, id int64) (*documents.Document, error) {
	doc, err := scanDocument(t.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	doc.Lines, err = loadLines(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (t *txRepo) ListEntriesByDocument(ctx context.Context, documentID int64) ([]ledger.Entry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, company_id, register_id, register_kind, document_id, currency, movement_kind, amount, running_balance, created_at
		FROM ledger_entries WHERE document_id = $1 ORDER BY id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var regKind, movKind string
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.RegisterID, &regKind, &e.DocumentID, &e.Currency, &movKind, &e.Amount, &e.RunningBalance, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RegisterKind = ledger.RegisterKind(regKind)
		e.MovementKind = ledger.MovementKind(movKind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *txRepo) UpdateDocumentState(ctx context.Context, documentID int64, state documents.State) error {
	_, err := t.tx.Exec(ctx, `UPDATE documents SET state = $2, updated_at = now() WHERE id = $1`, documentID, string(state))
	return err
}

func (t *txRepo) ApplyCorrection(ctx context.Context, parentID int64, balanceDelta decimal.Decimal, relatedRef string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE documents SET
		    balance = balance + $2,
		    related_documents = array_append(related_documents, $3),
		    updated_at = now()
		WHERE id = $1`,
		parentID, balanceDelta, relatedRef)
	return err
}

func (t *txRepo) MarkCanceled(ctx context.Context, documentID int64, reason string, relatedRef string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE documents SET
		    state = $2,
		    balance = 0,
		    cancel_reason = $3,
		    related_documents = CASE WHEN $4 = '' THEN related_documents ELSE array_append(related_documents, $4) END,
		    canceled_at = now(),
		    updated_at = now()
		WHERE id = $1`,
		documentID, string(documents.StateCanceled), reason, relatedRef)
	return err
}

func (t *txRepo) SetDispatchStatus(ctx context.Context, documentID int64, kardexStatus, notifyStatus documents.DispatchStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE documents SET kardex_status = $2, notify_status = $3, updated_at = now() WHERE id = $1`,
		documentID, string(kardexStatus), string(notifyStatus))
	return err
}

// ----------------------------------------------------------------------------
// kardex batches
// ----------------------------------------------------------------------------

func scanBatch(row pgx.Row) (*kardex.Batch, error) {
	var b kardex.Batch
	var op, status string
	var lines []byte
	err := row.Scan(&b.ID, &b.CompanyID, &b.DocumentID, &b.DocumentTypeCode, &op, &b.DedupKey, &b.FlagCancel, &lines, &b.Warnings, &status, &b.CreatedAt, &b.DispatchedAt)
	if err != nil {
		return nil, err
	}
	b.TypeOperation = kardex.Direction(op)
	b.Status = kardex.BatchStatus(status)
	if err := json.Unmarshal(lines, &b.Lines); err != nil {
		return nil, err
	}
	return &b, nil
}

const batchColumns = `id, company_id, document_id, document_type_code, type_operation, dedup_key, flag_cancel, lines, warnings, status, created_at, dispatched_at`

func (t *txRepo) GetKardexBatchByDocument(ctx context.Context, documentID int64, flagCancel bool) (*kardex.Batch, error) {
	b, err := scanBatch(t.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM kardex_batches WHERE document_id = $1 AND flag_cancel = $2 ORDER BY id DESC LIMIT 1`, documentID, flagCancel))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (t *txRepo) InsertKardexBatch(ctx context.Context, batch *kardex.Batch) (int64, error) {
	lines, err := json.Marshal(batch.Lines)
	if err != nil {
		return 0, err
	}
	batch.CreatedAt = time.Now()
	var id int64
	err = t.tx.QueryRow(ctx, `
		INSERT INTO kardex_batches (company_id, document_id, document_type_code, type_operation, dedup_key, flag_cancel, lines, warnings, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		batch.CompanyID, batch.DocumentID, batch.DocumentTypeCode, string(batch.TypeOperation), batch.DedupKey,
		batch.FlagCancel, lines, batch.Warnings, string(batch.Status), batch.CreatedAt).Scan(&id)
	return id, err
}

// ----------------------------------------------------------------------------
// pool-level reads and worker updates
// ----------------------------------------------------------------------------

func (r *PGRepository) GetDocument(ctx context.Context, id int64) (*documents.Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	doc.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PGRepository) GetKardexBatch(ctx context.Context, id int64) (*kardex.Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM kardex_batches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (r *PGRepository) ListPendingKardexBatches(ctx context.Context, limit int) ([]kardex.Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM kardex_batches WHERE status = $1 ORDER BY id LIMIT $2`, string(kardex.BatchPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []kardex.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

func (r *PGRepository) MarkBatchDispatched(ctx context.Context, batchID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE kardex_batches SET status = $2, dispatched_at = now() WHERE id = $1`,
		batchID, string(kardex.BatchDispatched))
	if err != nil {
		return err
	}
	// The document's pending flag clears once no pending batch remains.
	_, err = r.pool.Exec(ctx, `
		UPDATE documents SET kardex_status = $2, updated_at = now()
		WHERE id = (SELECT document_id FROM kardex_batches WHERE id = $1)
		  AND NOT EXISTS (
		      SELECT 1 FROM kardex_batches kb
		      WHERE kb.document_id = documents.id AND kb.status = $3)`,
		batchID, string(documents.DispatchDispatched), string(kardex.BatchPending))
	return err
}

func (r *PGRepository) MarkBatchFailed(ctx context.Context, batchID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE kardex_batches SET status = $2 WHERE id = $1`, batchID, string(kardex.BatchFailed))
	return err
}

func (r *PGRepository) SetNotifyDispatched(ctx context.Context, documentID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE documents SET notify_status = $2, updated_at = now() WHERE id = $1`,
		documentID, string(documents.DispatchDispatched))
	return err
}

func (r *PGRepository) SetTaxStatus(ctx context.Context, documentID int64, status documents.TaxStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE documents SET tax_status = $2, updated_at = now() WHERE id = $1`, documentID, string(status))
	return err
}

func (r *PGRepository) ListDocuments(ctx context.Context, companyID int64, limit, offset int) ([]documents.Document, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE company_id = $1`, companyID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE company_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`, companyID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var docs []documents.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *d)
	}
	return docs, total, rows.Err()
}
