package kardex

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction marks an inventory movement as inbound or outbound.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

// Line is one inventory movement derived from a document line. Quantity is
// always unsigned; Direction carries the sign.
type Line struct {
	ProductID     int64           `json:"product_id"`
	WarehouseID   int64           `json:"warehouse_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Direction     Direction       `json:"direction"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	DocumentRef   string          `json:"document_ref"`
	OperationDate time.Time       `json:"operation_date"`
}

// BatchStatus tracks outbound delivery of a batch to the kardex sink.
type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchDispatched BatchStatus = "DISPATCHED"
	BatchFailed     BatchStatus = "FAILED"
)

// Batch groups the movement lines of one posted document. DedupKey is
// deterministic for the document identity so the downstream consumer can
// treat re-submission as a no-op.
type Batch struct {
	ID               int64       `json:"-"`
	CompanyID        int64       `json:"company_id"`
	DocumentID       int64       `json:"document_id"`
	DocumentTypeCode string      `json:"document_type_code"`
	TypeOperation    Direction   `json:"type_operation"`
	DedupKey         uuid.UUID   `json:"dedup_key"`
	FlagCancel       bool        `json:"flag_cancel"`
	Lines            []Line      `json:"kardex"`
	Warnings         []string    `json:"warnings,omitempty"`
	Status           BatchStatus `json:"-"`
	CreatedAt        time.Time   `json:"-"`
	DispatchedAt     *time.Time  `json:"-"`
}

// HasWarnings reports whether lines were skipped while building the batch.
func (b *Batch) HasWarnings() bool {
	return len(b.Warnings) > 0
}
