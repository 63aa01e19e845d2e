package tenant

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

// Repository provides PostgreSQL backed settings persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPolicy loads the posting policy for a company, nil when absent.
func (r *Repository) GetPolicy(ctx context.Context, companyID int64) (*PostingPolicy, error) {
	var p PostingPolicy
	err := r.pool.QueryRow(ctx, `
		SELECT company_id, skip_downstream_dispatch, require_formal_credit_note, credit_dispatch_deferred,
		       points_base, points_points, number_pad_width, series_prefix, base_currency
		FROM posting_policies WHERE company_id = $1`, companyID).Scan(
		&p.CompanyID, &p.SkipDownstreamDispatch, &p.RequireFormalCreditNote, &p.CreditDispatchDeferred,
		&p.PointsBase, &p.PointsPoints, &p.NumberPadWidth, &p.SeriesPrefix, &p.BaseCurrency,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListTypeSettings loads per-document-type overrides for a company.
func (r *Repository) ListTypeSettings(ctx context.Context, companyID int64) ([]TypeSettings, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT company_id, document_type, affects_stock, requires_warehouse, requires_credit_note
		FROM doc_type_settings WHERE company_id = $1`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TypeSettings
	for rows.Next() {
		var ts TypeSettings
		var docType string
		if err := rows.Scan(&ts.CompanyID, &docType, &ts.AffectsStock, &ts.RequiresWarehouse, &ts.RequiresCreditNote); err != nil {
			return nil, err
		}
		ts.DocumentType = documents.DocumentType(docType)
		out = append(out, ts)
	}
	return out, rows.Err()
}

// SavePolicy upserts a posting policy.
func (r *Repository) SavePolicy(ctx context.Context, p PostingPolicy) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO posting_policies (company_id, skip_downstream_dispatch, require_formal_credit_note, credit_dispatch_deferred,
		    points_base, points_points, number_pad_width, series_prefix, base_currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (company_id) DO UPDATE SET
		    skip_downstream_dispatch = EXCLUDED.skip_downstream_dispatch,
		    require_formal_credit_note = EXCLUDED.require_formal_credit_note,
		    credit_dispatch_deferred = EXCLUDED.credit_dispatch_deferred,
		    points_base = EXCLUDED.points_base,
		    points_points = EXCLUDED.points_points,
		    number_pad_width = EXCLUDED.number_pad_width,
		    series_prefix = EXCLUDED.series_prefix,
		    base_currency = EXCLUDED.base_currency`,
		p.CompanyID, p.SkipDownstreamDispatch, p.RequireFormalCreditNote, p.CreditDispatchDeferred,
		p.PointsBase, p.PointsPoints, p.NumberPadWidth, p.SeriesPrefix, p.BaseCurrency)
	return err
}
