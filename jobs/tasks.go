package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskKardexDispatch ships one committed kardex batch to the sink.
	TaskKardexDispatch = "kardex:dispatch"
	// TaskKardexRedispatch sweeps pending batches back onto the queue.
	TaskKardexRedispatch = "kardex:redispatch"
	// TaskNotifyDocument delivers a document notification.
	TaskNotifyDocument = "notify:document"
	// TaskTaxSubmit submits a finalized fiscal document to the tax
	// authority and records the returned status.
	TaskTaxSubmit = "tax:submit"
)

// KardexDispatchPayload identifies the batch to ship.
type KardexDispatchPayload struct {
	BatchID int64 `json:"batch_id"`
}

// NewKardexDispatchTask constructs an Asynq task for one batch.
func NewKardexDispatchTask(payload KardexDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskKardexDispatch, data, asynq.Queue(QueueDefault)), nil
}

// NewKardexRedispatchTask constructs the sweep task.
func NewKardexRedispatchTask() *asynq.Task {
	return asynq.NewTask(TaskKardexRedispatch, nil, asynq.Queue(QueueDefault))
}

// NotifyDocumentPayload identifies the document and event to announce.
type NotifyDocumentPayload struct {
	Event      notify.Event `json:"event"`
	DocumentID int64        `json:"document_id"`
}

// NewNotifyDocumentTask constructs an Asynq task for a notification.
func NewNotifyDocumentTask(payload NotifyDocumentPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyDocument, data, asynq.Queue(QueueDefault)), nil
}

// TaxSubmitPayload identifies the document to submit.
type TaxSubmitPayload struct {
	DocumentID int64 `json:"document_id"`
}

// NewTaxSubmitTask constructs an Asynq task for a tax submission.
func NewTaxSubmitTask(payload TaxSubmitPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTaxSubmit, data, asynq.Queue(QueueDefault)), nil
}

// Dispatcher enqueues post-commit work for the posting service. It
// implements posting.Dispatcher.
type Dispatcher struct {
	client *asynq.Client
}

// NewDispatcher constructs a dispatcher over an Asynq client.
func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// EnqueueKardex queues delivery of one kardex batch.
func (d *Dispatcher) EnqueueKardex(ctx context.Context, batchID int64) error {
	task, err := NewKardexDispatchTask(KardexDispatchPayload{BatchID: batchID})
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task)
	return err
}

// EnqueueNotify queues a document notification.
func (d *Dispatcher) EnqueueNotify(ctx context.Context, ev notify.Event, documentID int64) error {
	task, err := NewNotifyDocumentTask(NotifyDocumentPayload{Event: ev, DocumentID: documentID})
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task)
	return err
}

// EnqueueTaxSubmit queues a tax-authority submission.
func (d *Dispatcher) EnqueueTaxSubmit(ctx context.Context, documentID int64) error {
	task, err := NewTaxSubmitTask(TaxSubmitPayload{DocumentID: documentID})
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task)
	return err
}
