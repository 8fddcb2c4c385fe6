package store

import (
	"context"

	"github.com/serroba/quota-guard/internal/audit"
	"go.uber.org/zap"
)

// Noop is a no-op implementation of audit.Store that logs events.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op audit store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveQuotaRejected(_ context.Context, event *audit.QuotaRejectedEvent) error {
	n.logger.Info("quota rejected event received",
		zap.String("identifier", event.Identifier),
		zap.String("policy", event.Policy),
		zap.String("path", event.Path),
		zap.Time("rejectedAt", event.RejectedAt),
	)

	return nil
}

func (n *Noop) SaveWebhookReceived(_ context.Context, event *audit.WebhookReceivedEvent) error {
	n.logger.Info("webhook received event received",
		zap.String("webhookId", event.WebhookID),
		zap.String("topic", event.Topic),
		zap.String("shop", event.Shop),
	)

	return nil
}

func (n *Noop) SaveExportRequested(_ context.Context, event *audit.ExportRequestedEvent) error {
	n.logger.Info("export requested event received",
		zap.String("jobId", event.JobID),
		zap.String("resource", event.Resource),
		zap.String("shop", event.Shop),
	)

	return nil
}

// Compile-time check.
var _ audit.Store = (*Noop)(nil)
