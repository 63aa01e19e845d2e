// Package ledger applies signed balance deltas to cash registers, bank
// accounts, and customer/subsidiary debt aggregates. Running balances are
// chained read-modify-write under the posting transaction's register lock,
// which is what keeps two tellers on one drawer from losing updates.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

// Store is the transactional surface the poster writes through. LockRegister
// must take a row lock held for the rest of the transaction; the last
// running balance read is only safe behind it.
type Store interface {
	LockRegister(ctx context.Context, registerID int64) (*Register, error)
	LastRunningBalance(ctx context.Context, registerID int64, currency string) (decimal.Decimal, error)
	InsertEntry(ctx context.Context, e *Entry) error
	UpsertDebt(ctx context.Context, companyID int64, holder HolderKind, holderID int64, currency string, salesDelta, debtsDelta decimal.Decimal) error
	AddCustomerPoints(ctx context.Context, customerID int64, points int64) error
}

// PointsRatio configures loyalty accrual: the accrued value is
// floor(amount / Base * Points). A zero Base disables it.
type PointsRatio struct {
	Base   decimal.Decimal
	Points decimal.Decimal
}

// Enabled reports whether accrual applies.
func (r PointsRatio) Enabled() bool {
	return r.Base.IsPositive() && r.Points.IsPositive()
}

// Poster writes ledger effects for a document within one unit of work.
type Poster struct {
	store  Store
	points PointsRatio
}

// NewPoster constructs a poster bound to a transactional store.
func NewPoster(store Store, points PointsRatio) *Poster {
	return &Poster{store: store, points: points}
}

// sign returns the financial direction of a document type: credit notes and
// purchases take money out, everything else brings it in.
func sign(t documents.DocumentType) decimal.Decimal {
	switch t {
	case documents.TypeCreditNote, documents.TypePurchase:
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Post applies the payment breakdown of doc. Cash and bank lines become
// Entry rows with chained running balances; credit lines become symmetric
// customer and subsidiary debt increments. The created entries are returned
// in creation order so callers can assert signs and ordering.
func (p *Poster) Post(ctx context.Context, doc *documents.Document, breakdown []PaymentLine) ([]Entry, error) {
	dir := sign(doc.Type)
	var entries []Entry
	var settled decimal.Decimal

	for _, line := range breakdown {
		switch documents.PaymentMethod(line.Method) {
		case documents.PayCredit:
			if err := p.applyCredit(ctx, doc, line.Amount.Mul(dir)); err != nil {
				return nil, err
			}
		case documents.PayCash, documents.PayBank:
			entry, err := p.applySettled(ctx, doc, line, line.Amount.Mul(dir))
			if err != nil {
				return nil, err
			}
			entries = append(entries, *entry)
			settled = settled.Add(line.Amount)
		default:
			return nil, fmt.Errorf("%w: unknown payment method %q", ErrLedgerMismatch, line.Method)
		}
	}

	if err := p.accruePoints(ctx, doc, settled); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *Poster) applySettled(ctx context.Context, doc *documents.Document, line PaymentLine, amount decimal.Decimal) (*Entry, error) {
	reg, err := p.store.LockRegister(ctx, line.RegisterID)
	if err != nil {
		return nil, err
	}
	if reg == nil || reg.CompanyID != doc.CompanyID {
		return nil, fmt.Errorf("%w: register %d not owned by company %d", ErrLedgerMismatch, line.RegisterID, doc.CompanyID)
	}
	if reg.Currency != doc.Currency {
		return nil, fmt.Errorf("%w: register %d holds %s, document is %s", ErrLedgerMismatch, reg.ID, reg.Currency, doc.Currency)
	}

	last, err := p.store.LastRunningBalance(ctx, reg.ID, doc.Currency)
	if err != nil {
		return nil, err
	}

	kind := MovementIncome
	if amount.IsNegative() {
		kind = MovementExpense
	}
	entry := &Entry{
		CompanyID:      doc.CompanyID,
		RegisterID:     reg.ID,
		RegisterKind:   reg.Kind,
		DocumentID:     doc.ID,
		Currency:       doc.Currency,
		MovementKind:   kind,
		Amount:         amount,
		RunningBalance: last.Add(amount),
	}
	if err := p.store.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (p *Poster) applyCredit(ctx context.Context, doc *documents.Document, amount decimal.Decimal) error {
	if doc.CustomerID == nil {
		return fmt.Errorf("%w: credit line requires a customer", ErrLedgerMismatch)
	}
	if err := p.store.UpsertDebt(ctx, doc.CompanyID, HolderCustomer, *doc.CustomerID, doc.Currency, amount, amount); err != nil {
		return err
	}
	return p.store.UpsertDebt(ctx, doc.CompanyID, HolderSubsidiary, doc.SubsidiaryID, doc.Currency, amount, amount)
}

func (p *Poster) accruePoints(ctx context.Context, doc *documents.Document, settled decimal.Decimal) error {
	if !p.points.Enabled() || doc.CustomerID == nil || doc.Type.IsNote() || !settled.IsPositive() {
		return nil
	}
	pts := settled.Div(p.points.Base).Mul(p.points.Points).Floor().IntPart()
	if pts <= 0 {
		return nil
	}
	return p.store.AddCustomerPoints(ctx, *doc.CustomerID, pts)
}

// Invert writes offsetting entries for the given original entries against
// the same registers, and reopens the document's deferred debt. It is the
// raw reversal path: the sum of originals plus inversions is zero per
// register and currency.
func (p *Poster) Invert(ctx context.Context, doc *documents.Document, originals []Entry) ([]Entry, error) {
	var entries []Entry
	for _, orig := range originals {
		reg, err := p.store.LockRegister(ctx, orig.RegisterID)
		if err != nil {
			return nil, err
		}
		if reg == nil || reg.CompanyID != doc.CompanyID {
			return nil, fmt.Errorf("%w: register %d not owned by company %d", ErrLedgerMismatch, orig.RegisterID, doc.CompanyID)
		}
		last, err := p.store.LastRunningBalance(ctx, orig.RegisterID, orig.Currency)
		if err != nil {
			return nil, err
		}
		amount := orig.Amount.Neg()
		kind := MovementIncome
		if amount.IsNegative() {
			kind = MovementExpense
		}
		entry := &Entry{
			CompanyID:      doc.CompanyID,
			RegisterID:     orig.RegisterID,
			RegisterKind:   orig.RegisterKind,
			DocumentID:     doc.ID,
			Currency:       orig.Currency,
			MovementKind:   kind,
			Amount:         amount,
			RunningBalance: last.Add(amount),
		}
		if err := p.store.InsertEntry(ctx, entry); err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := p.reverseDebt(ctx, doc); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *Poster) reverseDebt(ctx context.Context, doc *documents.Document) error {
	if doc.CustomerID == nil || !doc.DueAmount.IsPositive() {
		return nil
	}
	neg := doc.DueAmount.Neg()
	if err := p.store.UpsertDebt(ctx, doc.CompanyID, HolderCustomer, *doc.CustomerID, doc.Currency, neg, neg); err != nil {
		return err
	}
	return p.store.UpsertDebt(ctx, doc.CompanyID, HolderSubsidiary, doc.SubsidiaryID, doc.Currency, neg, neg)
}
