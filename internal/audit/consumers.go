package audit

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/quota-guard/internal/messaging"
	"go.uber.org/zap"
)

// NewConsumers returns one consumer per audit topic, each persisting into store.
func NewConsumers(subscriber message.Subscriber, store Store, logger *zap.Logger) []messaging.Runnable {
	return []messaging.Runnable{
		messaging.NewConsumer[QuotaRejectedEvent](subscriber, TopicQuotaRejected, store.SaveQuotaRejected, logger),
		messaging.NewConsumer[WebhookReceivedEvent](subscriber, TopicWebhookReceived, store.SaveWebhookReceived, logger),
		messaging.NewConsumer[ExportRequestedEvent](subscriber, TopicExportRequested, store.SaveExportRequested, logger),
	}
}
