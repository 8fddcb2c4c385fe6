package handlers

import (
	"time"

	"github.com/serroba/quota-guard/internal/ratelimit"
)

// ReceiveWebhookRequest is an inbound webhook delivery.
type ReceiveWebhookRequest struct {
	Topic     string `doc:"Webhook topic"               example:"orders-create" path:"topic"`
	WebhookID string `doc:"Unique delivery id"          header:"X-Webhook-Id"   required:"true"`
	Shop      string `doc:"Shop that sent the delivery" header:"X-Shop-Domain"  required:"true"`
	RawBody   []byte
}

// ReceiveWebhookResponse acknowledges a webhook delivery.
type ReceiveWebhookResponse struct {
	Status int
	Body   struct {
		WebhookID string `doc:"Delivery id"           json:"webhookId"`
		Result    string `doc:"accepted or duplicate" enum:"accepted,duplicate" json:"result"`
	}
}

// RequestExportRequest queues an export of one resource.
type RequestExportRequest struct {
	Resource string `doc:"Resource to export" enum:"orders,customers,products" path:"resource"`
}

// RequestExportResponse is returned for a queued export job.
type RequestExportResponse struct {
	Status int
	Body   struct {
		JobID    string `doc:"Export job id"     example:"V1StGXR8_Z5jdHi6B-myT" json:"jobId"`
		Resource string `doc:"Exported resource" json:"resource"`
		Result   string `doc:"Job state"         json:"result"`
	}
}

// CopilotQueryRequest is a question for the assistant.
type CopilotQueryRequest struct {
	Body struct {
		Prompt string `doc:"Question text" json:"prompt" maxLength:"2000" minLength:"1"`
	}
}

// CopilotQueryResponse acknowledges an assistant query.
type CopilotQueryResponse struct {
	Body struct {
		Accepted     bool `json:"accepted"`
		PromptLength int  `json:"promptLength"`
	}
}

// ConfirmBillingRequest confirms a pending charge.
type ConfirmBillingRequest struct {
	Body struct {
		ChargeID string `doc:"Charge to confirm" json:"chargeId" minLength:"1"`
	}
}

// ConfirmBillingResponse reports the confirmed charge.
type ConfirmBillingResponse struct {
	Body struct {
		ChargeID string `json:"chargeId"`
		Result   string `json:"result"`
	}
}

// PeekQuotaRequest asks for the caller's remaining quota under a named policy.
type PeekQuotaRequest struct {
	Policy string `doc:"Policy label" path:"policy"`
}

// PeekQuotaResponse reports the caller's quota without consuming it.
type PeekQuotaResponse struct {
	Body struct {
		Policy    string    `json:"policy"`
		Allowed   bool      `doc:"Whether one more request would pass" json:"allowed"`
		Limit     int64     `json:"limit"`
		Remaining int64     `json:"remaining"`
		ResetAt   time.Time `json:"resetAt"`
	}
}

// ResetQuotaRequest clears counters for an identifier.
type ResetQuotaRequest struct {
	Body struct {
		Identifier string `doc:"Identifier as counted, or the caller part when policy is set" json:"identifier" minLength:"1"`
		Policy     string `doc:"Reset only this policy's window"                              json:"policy,omitempty"   required:"false"`
		WindowMs   int64  `doc:"Reset only this window, in milliseconds"                      json:"windowMs,omitempty" minimum:"0" required:"false"`
	}
}

// QuotaStatsResponse reports limiter activity.
type QuotaStatsResponse struct {
	Body ratelimit.Stats
}
