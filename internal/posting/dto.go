package posting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// LineRequest is one requested document line. UnitCost is the cost snapshot
// the caller resolved at request time.
type LineRequest struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	WarehouseID *int64          `json:"warehouse_id,omitempty"`
	BrandID     *int64          `json:"brand_id,omitempty"`
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	IsService   bool            `json:"is_service"`
}

// PostRequest is the inbound posting contract from the CRUD/HTTP layer.
type PostRequest struct {
	CompanyID        int64                  `json:"company_id" validate:"required,gt=0"`
	SubsidiaryID     int64                  `json:"subsidiary_id" validate:"required,gt=0"`
	TerminalID       int64                  `json:"terminal_id" validate:"required,gt=0"`
	CustomerID       *int64                 `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	DocumentType     documents.DocumentType `json:"document_type" validate:"required"`
	ParentDocumentID *int64                 `json:"parent_document_id,omitempty" validate:"omitempty,gt=0"`
	Currency         string                 `json:"currency" validate:"required,len=3"`
	ExchangeRate     decimal.Decimal        `json:"exchange_rate"`
	Lines            []LineRequest          `json:"line_items" validate:"required,min=1,dive"`
	PaymentBreakdown []ledger.PaymentLine   `json:"payment_breakdown" validate:"dive"`
	ExplicitNumber   *int64                 `json:"explicit_number,omitempty" validate:"omitempty,gt=0"`
	DateOnline       *time.Time             `json:"date_online,omitempty"`
}

// PostResult is the committed outcome of a posting.
type PostResult struct {
	Document      *documents.Document      `json:"document"`
	LedgerEntries int                      `json:"ledger_entries"`
	KardexLines   int                      `json:"kardex_lines"`
	KardexStatus  documents.DispatchStatus `json:"kardex_status"`
	NotifyStatus  documents.DispatchStatus `json:"notify_status"`
	Warnings      []string                 `json:"warnings,omitempty"`
}

// CancelResult is the committed outcome of a cancellation. Reversal is the
// generated credit note when the formal path ran, or the original document
// when the raw inversion ran.
type CancelResult struct {
	Original      *documents.Document      `json:"original"`
	Reversal      *documents.Document      `json:"reversal"`
	FormalNote    bool                     `json:"formal_note"`
	LedgerEntries int                      `json:"ledger_entries"`
	KardexLines   int                      `json:"kardex_lines"`
	KardexStatus  documents.DispatchStatus `json:"kardex_status"`
}
