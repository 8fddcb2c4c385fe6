package audit

import "time"

// Topics carrying audit events.
const (
	TopicQuotaRejected   = "quota.rejected"
	TopicWebhookReceived = "webhook.received"
	TopicExportRequested = "export.requested"
)

// QuotaRejectedEvent is emitted when a request is turned away with a 429.
type QuotaRejectedEvent struct {
	Identifier string    `json:"identifier"`
	Policy     string    `json:"policy"`
	Limit      int64     `json:"limit"`
	Window     string    `json:"window"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	ClientIP   string    `json:"clientIp"`
	ResetAt    time.Time `json:"resetAt"`
	RejectedAt time.Time `json:"rejectedAt"`
}

// WebhookReceivedEvent is emitted for every webhook accepted for processing.
type WebhookReceivedEvent struct {
	WebhookID  string    `json:"webhookId"`
	Topic      string    `json:"topic"`
	Shop       string    `json:"shop"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// ExportRequestedEvent is emitted when an export job is queued.
type ExportRequestedEvent struct {
	JobID       string    `json:"jobId"`
	Resource    string    `json:"resource"`
	Shop        string    `json:"shop"`
	RequestedAt time.Time `json:"requestedAt"`
}
