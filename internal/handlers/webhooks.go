package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-guard/internal/audit"
	"github.com/serroba/quota-guard/internal/clientid"
	"github.com/serroba/quota-guard/internal/messaging"
	"github.com/serroba/quota-guard/internal/ratelimit"
	"go.uber.org/zap"
)

// Webhook delivery results.
const (
	WebhookAccepted  = "accepted"
	WebhookDuplicate = "duplicate"
)

// WebhookHandler accepts webhook deliveries once per delivery id.
type WebhookHandler struct {
	limiter *ratelimit.Limiter
	publish messaging.Publish[audit.WebhookReceivedEvent]
	logger  *zap.Logger
}

// NewWebhookHandler creates a webhook handler. Deliveries are deduplicated through limiter.
func NewWebhookHandler(
	limiter *ratelimit.Limiter,
	publish messaging.Publish[audit.WebhookReceivedEvent],
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		limiter: limiter,
		publish: publish,
		logger:  logger,
	}
}

// Receive records a delivery. A delivery id seen within the dedupe window is
// acknowledged with 200 and not processed again. When the event cannot be queued
// the delivery is answered 503 and is not remembered, so a redelivery is accepted.
func (h *WebhookHandler) Receive(ctx context.Context, req *ReceiveWebhookRequest) (*ReceiveWebhookResponse, error) {
	resp := &ReceiveWebhookResponse{}
	resp.Body.WebhookID = req.WebhookID

	dedupeID := clientid.Compound("webhook", req.WebhookID)

	seen := h.limiter.Check(ctx, dedupeID, ratelimit.PolicyWebhookDedupe)
	if !seen.Allowed {
		h.logger.Debug("duplicate webhook delivery",
			zap.String("webhook_id", req.WebhookID),
			zap.String("topic", req.Topic),
		)

		resp.Status = http.StatusOK
		resp.Body.Result = WebhookDuplicate

		return resp, nil
	}

	event := &audit.WebhookReceivedEvent{
		WebhookID:  req.WebhookID,
		Topic:      req.Topic,
		Shop:       clientid.Sanitize(req.Shop),
		ReceivedAt: time.Now().UTC(),
	}

	if err := h.publish(event); err != nil {
		h.logger.Error("failed to publish webhook event",
			zap.String("webhook_id", event.WebhookID),
			zap.Error(err),
		)

		// Forget the delivery so the sender's retry is processed.
		if resetErr := h.limiter.Reset(ctx, dedupeID, ratelimit.PolicyWebhookDedupe.Window); resetErr != nil {
			h.logger.Error("failed to release webhook dedupe key",
				zap.String("webhook_id", event.WebhookID),
				zap.Error(resetErr),
			)
		}

		return nil, huma.Error503ServiceUnavailable("webhook queue unavailable")
	}

	resp.Status = http.StatusAccepted
	resp.Body.Result = WebhookAccepted

	return resp, nil
}
