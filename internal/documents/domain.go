package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentType identifies the fiscal or operational class of a document.
type DocumentType string

const (
	TypeInvoice        DocumentType = "INVOICE"
	TypeReceipt        DocumentType = "RECEIPT"
	TypePurchase       DocumentType = "PURCHASE"
	TypeOrder          DocumentType = "ORDER"
	TypeRemissionGuide DocumentType = "REMISSION_GUIDE"
	TypeCreditNote     DocumentType = "CREDIT_NOTE"
	TypeDebitNote      DocumentType = "DEBIT_NOTE"
	TypeQuotation      DocumentType = "QUOTATION"
)

// IsNote reports whether the type is a correcting note referencing a parent.
func (t DocumentType) IsNote() bool {
	return t == TypeCreditNote || t == TypeDebitNote
}

// MovesStockOut reports whether this type dispatches inventory.
func (t DocumentType) MovesStockOut() bool {
	switch t {
	case TypeInvoice, TypeReceipt, TypeRemissionGuide:
		return true
	}
	return false
}

// TaxStatus tracks the tax-authority lifecycle of a finalized document.
// The posting engine only persists the status; submission itself is an
// external collaborator.
type TaxStatus string

const (
	TaxUnsent    TaxStatus = "UNSENT"
	TaxInProcess TaxStatus = "IN_PROCESS"
	TaxValidated TaxStatus = "VALIDATED"
	TaxError     TaxStatus = "ERROR"
	TaxSigned    TaxStatus = "SIGNED"
	TaxSignError TaxStatus = "SIGN_ERROR"
)

// DispatchStatus tracks post-commit downstream delivery (kardex sink,
// notifications) for a committed document.
type DispatchStatus string

const (
	DispatchNone       DispatchStatus = "NONE"
	DispatchPending    DispatchStatus = "PENDING"
	DispatchDispatched DispatchStatus = "DISPATCHED"
)

// PaymentMethod distinguishes how a payment line settles.
type PaymentMethod string

const (
	PayCash   PaymentMethod = "CASH"
	PayBank   PaymentMethod = "BANK"
	PayCredit PaymentMethod = "CREDIT"
)

// LineItem is one product or service line on a document. UnitCost is the
// cost snapshot taken at posting time; reversals must reuse it, never the
// current catalog cost.
type LineItem struct {
	ID          int64           `json:"id"`
	DocumentID  int64           `json:"document_id"`
	ProductID   int64           `json:"product_id"`
	WarehouseID *int64          `json:"warehouse_id,omitempty"`
	BrandID     *int64          `json:"brand_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	LineTotal   decimal.Decimal `json:"line_total"`
	IsService   bool            `json:"is_service"`
}

// Storable reports whether the line can move stock.
func (l LineItem) Storable() bool {
	return !l.IsService && l.WarehouseID != nil
}

// Document is an immutable fiscal/operational record. It is never deleted;
// cancellation appends offsetting rows and flips State.
type Document struct {
	ID               int64           `json:"id"`
	ExternalID       uuid.UUID       `json:"external_id"`
	CompanyID        int64           `json:"company_id"`
	SubsidiaryID     int64           `json:"subsidiary_id"`
	TerminalID       int64           `json:"terminal_id"`
	CustomerID       *int64          `json:"customer_id,omitempty"`
	Type             DocumentType    `json:"document_type"`
	State            State           `json:"state"`
	Series           string          `json:"series"`
	Number           int64           `json:"number"`
	Currency         string          `json:"currency"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	DueAmount        decimal.Decimal `json:"due_amount"`
	Balance          decimal.Decimal `json:"balance"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	ParentDocumentID *int64          `json:"parent_document_id,omitempty"`
	DuplicateHash    uuid.UUID       `json:"-"`
	TaxStatus        TaxStatus       `json:"tax_status"`
	KardexStatus     DispatchStatus  `json:"kardex_status"`
	NotifyStatus     DispatchStatus  `json:"notify_status"`
	RelatedDocuments []string        `json:"related_documents,omitempty"`
	CancelReason     *string         `json:"cancel_reason,omitempty"`
	Removed          bool            `json:"removed"`
	IssuedAt         time.Time       `json:"issued_at"`
	CanceledAt       *time.Time      `json:"canceled_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	Lines []LineItem `json:"lines,omitempty"`
}

// FullNumber renders the persisted/exported identifier
// <seriesPrefix><series>-<number>, number left-padded to width digits.
func (d Document) FullNumber(prefix string, width int) string {
	return FormatNumber(prefix, d.Series, d.Number, width)
}
