package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-guard/internal/clientid"
	"github.com/serroba/quota-guard/internal/ratelimit"
	"go.uber.org/zap"
)

// QuotaHandler exposes quota inspection to callers and administration to operators.
type QuotaHandler struct {
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewQuotaHandler creates a quota handler.
func NewQuotaHandler(limiter *ratelimit.Limiter, logger *zap.Logger) *QuotaHandler {
	return &QuotaHandler{limiter: limiter, logger: logger}
}

// Peek reports the caller's remaining quota under a named policy. It never
// consumes quota and only ever reads the caller's own counter.
func (h *QuotaHandler) Peek(ctx context.Context, req *PeekQuotaRequest) (*PeekQuotaResponse, error) {
	policy, ok := ratelimit.Lookup(req.Policy)
	if !ok {
		return nil, huma.Error404NotFound("unknown policy " + req.Policy)
	}

	identifier := clientid.Compound(policy.Label, RequestMetaFromContext(ctx).Caller())
	d := h.limiter.Peek(ctx, identifier, policy)

	resp := &PeekQuotaResponse{}
	resp.Body.Policy = policy.Label
	resp.Body.Allowed = d.Allowed
	resp.Body.Limit = d.Limit
	resp.Body.Remaining = d.Remaining
	resp.Body.ResetAt = d.ResetAt.UTC()

	return resp, nil
}

// Reset clears counters. With a policy only that policy's counter for the
// identifier is cleared; with a window only that window; otherwise all windows.
func (h *QuotaHandler) Reset(ctx context.Context, req *ResetQuotaRequest) (*struct{}, error) {
	identifier := req.Body.Identifier
	window := time.Duration(req.Body.WindowMs) * time.Millisecond

	if req.Body.Policy != "" {
		policy, ok := ratelimit.Lookup(req.Body.Policy)
		if !ok {
			return nil, huma.Error404NotFound("unknown policy " + req.Body.Policy)
		}

		identifier = clientid.Compound(policy.Label, identifier)
		window = policy.Window
	}

	if err := h.limiter.Reset(ctx, identifier, window); err != nil {
		h.logger.Error("quota reset failed",
			zap.String("identifier", identifier),
			zap.Error(err),
		)

		return nil, huma.Error503ServiceUnavailable("quota backend unavailable")
	}

	h.logger.Info("quota reset",
		zap.String("identifier", identifier),
		zap.Duration("window", window),
	)

	return nil, nil
}

// Stats reports limiter counters and the store size.
func (h *QuotaHandler) Stats(ctx context.Context, _ *struct{}) (*QuotaStatsResponse, error) {
	return &QuotaStatsResponse{Body: h.limiter.Stats(ctx)}, nil
}
