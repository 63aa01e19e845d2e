package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrLedgerMismatch indicates a balance write that targets a register the
// tenant does not own, or a currency that differs from the document's.
// It aborts the unit of work so no partial posting survives.
var ErrLedgerMismatch = errors.New("ledger register mismatch")

// RegisterKind distinguishes cash drawers from bank accounts.
type RegisterKind string

const (
	RegisterCash RegisterKind = "CASH"
	RegisterBank RegisterKind = "BANK"
)

// MovementKind classifies an entry for reporting.
type MovementKind string

const (
	MovementIncome  MovementKind = "INCOME"
	MovementExpense MovementKind = "EXPENSE"
)

// Register is a cash drawer or bank account owned by a company. Each
// register carries exactly one currency.
type Register struct {
	ID        int64
	CompanyID int64
	Kind      RegisterKind
	Currency  string
	Name      string
}

// Entry is one signed cash or bank movement. Entries are append-only;
// reversal adds offsetting rows rather than mutating history.
type Entry struct {
	ID             int64
	CompanyID      int64
	RegisterID     int64
	RegisterKind   RegisterKind
	DocumentID     int64
	Currency       string
	MovementKind   MovementKind
	Amount         decimal.Decimal
	RunningBalance decimal.Decimal
	CreatedAt      time.Time
}

// HolderKind names which side of a credit relationship an aggregate tracks.
type HolderKind string

const (
	HolderCustomer   HolderKind = "CUSTOMER"
	HolderSubsidiary HolderKind = "SUBSIDIARY"
)

// DebtAggregate accumulates credit exposure per (holder, currency). Only
// the ledger poster and the reversal path mutate it, never CRUD screens.
type DebtAggregate struct {
	CompanyID  int64
	HolderKind HolderKind
	HolderID   int64
	Currency   string
	TotalSales decimal.Decimal
	TotalDebts decimal.Decimal
}

// PaymentLine is one element of a posting's payment breakdown.
type PaymentLine struct {
	Method     string          `json:"method" validate:"required,oneof=CASH BANK CREDIT"`
	RegisterID int64           `json:"register_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}
