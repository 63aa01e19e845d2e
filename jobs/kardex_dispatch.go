package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/kardex"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/posting"
)

// KardexDispatchJob ships committed batches to the inventory sink. The
// sink is idempotent on the batch dedup key, so Asynq retries and the cron
// sweep can safely re-send.
type KardexDispatchJob struct {
	repo    posting.Repository
	sink    *kardex.Sink
	client  *asynq.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewKardexDispatchJob constructs the job.
func NewKardexDispatchJob(repo posting.Repository, sink *kardex.Sink, client *asynq.Client, logger *slog.Logger, metrics *observability.Metrics) *KardexDispatchJob {
	return &KardexDispatchJob{repo: repo, sink: sink, client: client, logger: logger, metrics: metrics}
}

// HandleDispatch processes TaskKardexDispatch tasks.
func (j *KardexDispatchJob) HandleDispatch(ctx context.Context, t *asynq.Task) error {
	var payload KardexDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	batch, err := j.repo.GetKardexBatch(ctx, payload.BatchID)
	if err != nil {
		return err
	}
	if batch == nil || batch.Status != kardex.BatchPending {
		return nil
	}
	if err := j.sink.Send(ctx, batch); err != nil {
		j.logger.Warn("kardex dispatch failed, will retry",
			slog.Int64("batch_id", batch.ID), slog.Any("error", err))
		return err
	}
	if err := j.repo.MarkBatchDispatched(ctx, batch.ID); err != nil {
		return err
	}
	j.logger.Info("kardex batch dispatched",
		slog.Int64("batch_id", batch.ID),
		slog.Int64("document_id", batch.DocumentID),
		slog.Int("lines", len(batch.Lines)),
		slog.Bool("flag_cancel", batch.FlagCancel),
	)
	return nil
}

// HandleRedispatch processes the cron sweep: every pending batch goes back
// onto the queue. Batches stuck pending are the degraded postings whose
// enqueue failed at commit time.
func (j *KardexDispatchJob) HandleRedispatch(ctx context.Context, t *asynq.Task) error {
	batches, err := j.repo.ListPendingKardexBatches(ctx, 200)
	if err != nil {
		return err
	}
	j.metrics.SetKardexPending(len(batches))
	for _, batch := range batches {
		task, err := NewKardexDispatchTask(KardexDispatchPayload{BatchID: batch.ID})
		if err != nil {
			return err
		}
		if _, err := j.client.EnqueueContext(ctx, task); err != nil {
			j.logger.Warn("kardex redispatch enqueue failed",
				slog.Int64("batch_id", batch.ID), slog.Any("error", err))
		}
	}
	return nil
}
