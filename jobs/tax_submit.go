package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/posting"
	"github.com/meridian-erp/meridian-erp/internal/tax"
)

// TaxSubmitJob submits finalized documents to the tax authority and records
// the returned status. A validated status later forces cancellations onto
// the raw-inversion path, so persisting it promptly matters.
type TaxSubmitJob struct {
	repo      posting.Repository
	authority tax.Authority
	logger    *slog.Logger
}

// NewTaxSubmitJob constructs the job.
func NewTaxSubmitJob(repo posting.Repository, authority tax.Authority, logger *slog.Logger) *TaxSubmitJob {
	return &TaxSubmitJob{repo: repo, authority: authority, logger: logger}
}

// HandleSubmit processes TaskTaxSubmit tasks.
func (j *TaxSubmitJob) HandleSubmit(ctx context.Context, t *asynq.Task) error {
	var payload TaxSubmitPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	doc, err := j.repo.GetDocument(ctx, payload.DocumentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return asynq.SkipRetry
	}
	// Only finalized documents are reportable; a document canceled before
	// this task ran no longer needs submission.
	if doc.State != documents.StateFinalized {
		return nil
	}
	status, err := j.authority.Submit(ctx, doc)
	if err != nil {
		j.logger.Warn("tax submission failed, will retry",
			slog.Int64("document_id", doc.ID), slog.Any("error", err))
		return err
	}
	if status == doc.TaxStatus {
		return nil
	}
	if err := j.repo.SetTaxStatus(ctx, doc.ID, status); err != nil {
		return err
	}
	j.logger.Info("tax status recorded",
		slog.Int64("document_id", doc.ID),
		slog.String("document", doc.FullNumber("", 0)),
		slog.String("status", string(status)),
	)
	return nil
}
