package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-guard/internal/ratelimit"
)

// RegisterRoutes registers the protected endpoints with their per-endpoint quota configuration.
func RegisterRoutes(api huma.API, webhooks *WebhookHandler, exports *ExportHandler) {
	// POST /webhooks/{topic} - Receive a webhook delivery
	// Limited per shop, deduplicated per delivery id inside the handler
	huma.Register(api, huma.Operation{
		OperationID: "receive-webhook",
		Method:      http.MethodPost,
		Path:        "/webhooks/{topic}",
		Summary:     "Receive webhook",
		Description: "Accepts a webhook delivery once; redeliveries of the same id are acknowledged as duplicates.",
		Tags:        []string{"Webhooks"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Policies: []ratelimit.Policy{ratelimit.PolicyWebhook},
				Identify: IdentifyShop,
			},
		},
	}, webhooks.Receive)

	// POST /exports/{resource} - Queue an export
	// Exports are expensive, so the budget is small and per resource
	huma.Register(api, huma.Operation{
		OperationID:   "request-export",
		Method:        http.MethodPost,
		Path:          "/exports/{resource}",
		Summary:       "Request export",
		Description:   "Queues an export job for the resource.",
		Tags:          []string{"Exports"},
		DefaultStatus: http.StatusAccepted,
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Policies: []ratelimit.Policy{ratelimit.PolicyExport},
				Identify: IdentifyExport,
			},
		},
	}, exports.Request)

	huma.Register(api, huma.Operation{
		OperationID: "copilot-query",
		Method:      http.MethodPost,
		Path:        "/copilot/query",
		Summary:     "Ask the assistant",
		Tags:        []string{"Copilot"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Policies: []ratelimit.Policy{ratelimit.PolicyCopilot},
				Identify: IdentifyShop,
			},
		},
	}, CopilotQuery)

	huma.Register(api, huma.Operation{
		OperationID: "confirm-billing",
		Method:      http.MethodPost,
		Path:        "/billing/confirm",
		Summary:     "Confirm a charge",
		Tags:        []string{"Billing"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Policies: []ratelimit.Policy{ratelimit.PolicyBilling, ratelimit.PolicyAPI},
				Identify: IdentifyShop,
			},
		},
	}, ConfirmBilling)
}

// RegisterQuotaRoutes registers the caller-facing quota inspection.
func RegisterQuotaRoutes(api huma.API, quota *QuotaHandler) {
	// Reads are not limited by default, so peeking never costs quota
	huma.Register(api, huma.Operation{
		OperationID: "peek-quota",
		Method:      http.MethodGet,
		Path:        "/quota/{policy}",
		Summary:     "Peek quota",
		Description: "Reports the caller's remaining quota under a policy without consuming it.",
		Tags:        []string{"Quota"},
	}, quota.Peek)
}

// RegisterAdminRoutes registers quota administration. The api is expected to be a
// group guarded by an operator check such as middleware.AdminOnly.
func RegisterAdminRoutes(api huma.API, quota *QuotaHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "quota-stats",
		Method:      http.MethodGet,
		Path:        "/quota/stats",
		Summary:     "Quota statistics",
		Tags:        []string{"Admin"},
	}, quota.Stats)

	huma.Register(api, huma.Operation{
		OperationID:   "reset-quota",
		Method:        http.MethodDelete,
		Path:          "/quota",
		Summary:       "Reset quota",
		Description:   "Clears counters for an identifier.",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusNoContent,
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, quota.Reset)
}
