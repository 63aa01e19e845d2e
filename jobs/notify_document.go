package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/notify"
	"github.com/meridian-erp/meridian-erp/internal/posting"
)

// NotifyDocumentJob delivers document notifications through the notify
// collaborator. Delivery providers are out of scope; a failure leaves the
// document's notify status pending and the task retries.
type NotifyDocumentJob struct {
	repo     posting.Repository
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewNotifyDocumentJob constructs the job.
func NewNotifyDocumentJob(repo posting.Repository, notifier notify.Notifier, logger *slog.Logger) *NotifyDocumentJob {
	return &NotifyDocumentJob{repo: repo, notifier: notifier, logger: logger}
}

// HandleNotify processes TaskNotifyDocument tasks.
func (j *NotifyDocumentJob) HandleNotify(ctx context.Context, t *asynq.Task) error {
	var payload NotifyDocumentPayload
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
	if err := j.notifier.Notify(ctx, payload.Event, doc); err != nil {
		j.logger.Warn("notification delivery failed, will retry",
			slog.Int64("document_id", doc.ID), slog.Any("error", err))
		return err
	}
	return j.repo.SetNotifyDispatched(ctx, doc.ID)
}
