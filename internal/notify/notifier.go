// Package notify hands document events to the delivery collaborator.
// Delivery itself (email/WhatsApp templates, providers) is out of scope;
// the engine only enqueues and records a pending status when that fails.
package notify

import (
	"context"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

// Event is the kind of document notification.
type Event string

const (
	EventPosted   Event = "DOCUMENT_POSTED"
	EventCanceled Event = "DOCUMENT_CANCELED"
)

// Notifier enqueues document notifications for asynchronous delivery.
type Notifier interface {
	Notify(ctx context.Context, ev Event, doc *documents.Document) error
}

// Discard drops notifications, used when dispatch is disabled by policy.
type Discard struct{}

// Notify does nothing.
func (Discard) Notify(ctx context.Context, ev Event, doc *documents.Document) error {
	return nil
}

// LogNotifier records document events to the structured log. It stands in
// for a real provider integration while keeping the pipeline observable.
type LogNotifier struct {
	Logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ev Event, doc *documents.Document) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "document notification",
		"event", string(ev),
		"document_id", doc.ID,
		"document", doc.FullNumber("", 0),
		"type", string(doc.Type),
		"company_id", doc.CompanyID,
	)
	return nil
}
