// Package tenant holds the per-company posting configuration the engine
// consults on every posting: downstream dispatch gating, credit-note
// requirements, loyalty ratios, and per-document-type stock settings. The
// flags are explicit typed structs rather than free-form settings blobs so
// an invalid combination fails validation instead of a runtime lookup.
package tenant

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

// PostingPolicy is the company-wide posting configuration.
type PostingPolicy struct {
	CompanyID int64 `json:"company_id"`
	// SkipDownstreamDispatch suppresses the outbound kardex/notification
	// calls (local and test environments).
	SkipDownstreamDispatch bool `json:"skip_downstream_dispatch"`
	// RequireFormalCreditNote forces cancellations of fiscal documents to go
	// through a mirror credit note instead of a raw ledger inversion.
	RequireFormalCreditNote bool `json:"require_formal_credit_note"`
	// CreditDispatchDeferred sends credit sales to TO_DELIVER until delivery
	// is confirmed; when false they finalize immediately.
	CreditDispatchDeferred bool `json:"credit_dispatch_deferred"`
	// PointsBase and PointsPoints configure loyalty accrual as
	// floor(amount / base * points); a zero base disables accrual.
	PointsBase   decimal.Decimal `json:"points_base"`
	PointsPoints decimal.Decimal `json:"points_points"`
	// NumberPadWidth is the digit width for formatted document numbers.
	NumberPadWidth int `json:"number_pad_width"`
	// SeriesPrefix is prepended to formatted document numbers.
	SeriesPrefix string `json:"series_prefix"`
	// BaseCurrency is the currency kardex unit costs are valued in.
	BaseCurrency string `json:"base_currency"`
}

// TypeSettings is the stock behaviour of one document type for a company.
type TypeSettings struct {
	CompanyID          int64                  `json:"company_id"`
	DocumentType       documents.DocumentType `json:"document_type"`
	AffectsStock       bool                   `json:"affects_stock"`
	RequiresWarehouse  bool                   `json:"requires_warehouse"`
	RequiresCreditNote bool                   `json:"requires_credit_note"`
}

// Settings bundles everything the posting engine needs for one company.
type Settings struct {
	Policy PostingPolicy                           `json:"policy"`
	Types  map[documents.DocumentType]TypeSettings `json:"types"`
}

// TypeFor returns the settings for a document type, defaulting to a
// stock-affecting configuration when the tenant has not overridden it.
func (s *Settings) TypeFor(t documents.DocumentType) TypeSettings {
	if ts, ok := s.Types[t]; ok {
		return ts
	}
	return TypeSettings{
		CompanyID:          s.Policy.CompanyID,
		DocumentType:       t,
		AffectsStock:       t != documents.TypeQuotation && t != documents.TypeOrder,
		RequiresWarehouse:  t.MovesStockOut() || t == documents.TypePurchase,
		RequiresCreditNote: t == documents.TypeInvoice || t == documents.TypeReceipt,
	}
}
