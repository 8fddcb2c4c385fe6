package audit

import "context"

// Store defines the interface for persisting audit events.
type Store interface {
	SaveQuotaRejected(ctx context.Context, event *QuotaRejectedEvent) error
	SaveWebhookReceived(ctx context.Context, event *WebhookReceivedEvent) error
	SaveExportRequested(ctx context.Context, event *ExportRequestedEvent) error
}
