package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-guard/internal/audit"
	"github.com/serroba/quota-guard/internal/clientid"
	"github.com/serroba/quota-guard/internal/handlers"
	"github.com/serroba/quota-guard/internal/messaging"
	"github.com/serroba/quota-guard/internal/ratelimit"
	"go.uber.org/zap"
)

// Quota returns a Huma middleware that enforces the rules the resolver yields for each request.
//
// Per-endpoint policies are attached via operation metadata using ratelimit.MetadataKey.
// Allowed requests carry the X-RateLimit-* headers of the tightest policy. Rejected
// requests get a 429 with Retry-After and a JSON body. A QuotaRejectedEvent is published
// for the first rejection of each window only.
// The api argument is kept for symmetry with the other Huma middlewares.
func Quota(
	_ huma.API,
	limiter *ratelimit.Limiter,
	resolver ratelimit.RuleResolver,
	publish messaging.Publish[audit.QuotaRejectedEvent],
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	publish = messaging.BestEffort(publish, logger)

	return func(ctx huma.Context, next func(huma.Context)) {
		rules := resolver.Resolve(ctx)

		d, ok := limiter.Enforce(ctx.Context(), rules)
		if !ok {
			next(ctx)

			return
		}

		if d.Allowed {
			for name, value := range d.Headers() {
				ctx.SetHeader(name, value)
			}

			next(ctx)

			return
		}

		now := limiter.Now()
		rejection := d.Reject(now)
		identifier := ruleIdentifier(rules, d.Policy)
		path := operationPath(ctx)
		ip := handlers.RequestMetaFromContext(ctx.Context()).ClientIP

		first := d.FirstRejection()

		// Only the first rejection of a window is logged at warn and published.
		level := zap.DebugLevel
		if first {
			level = zap.WarnLevel
		}

		logger.Log(level, "quota exceeded",
			zap.String("identifier", identifier),
			zap.String("policy", d.Policy.Label),
			zap.Int64("limit", d.Limit),
			zap.Int64("count", d.Count),
			zap.Duration("window", d.Policy.Window),
			zap.String("method", ctx.Method()),
			zap.String("path", path),
			zap.String("client_ip", ip),
		)

		for name, value := range rejection.Headers {
			ctx.SetHeader(name, value)
		}

		ctx.SetHeader("Content-Type", "application/json")
		ctx.SetStatus(rejection.Status)

		if err := json.NewEncoder(ctx.BodyWriter()).Encode(rejection.Body); err != nil {
			logger.Debug("failed to write rejection body", zap.Error(err))
		}

		if !first {
			return
		}

		_ = publish(&audit.QuotaRejectedEvent{
			Identifier: identifier,
			Policy:     d.Policy.Label,
			Limit:      d.Limit,
			Window:     d.Policy.Window.String(),
			Method:     ctx.Method(),
			Path:       path,
			ClientIP:   ip,
			ResetAt:    d.ResetAt,
			RejectedAt: now,
		})
	}
}

// IdentifyRequest derives the caller identifier for a plain HTTP request.
type IdentifyRequest func(r *http.Request) string

// IdentifyByIP identifies callers by client address as resolved by ips.
func IdentifyByIP(ips *clientid.Resolver) IdentifyRequest {
	return func(r *http.Request) string {
		return ips.ClientIP(r.Header.Get, r.RemoteAddr)
	}
}

// HTTPQuota enforces a single policy on plain net/http handlers, such as routes
// mounted on the router outside Huma. The response contract matches Quota.
func HTTPQuota(
	limiter *ratelimit.Limiter,
	policy ratelimit.Policy,
	identify IdentifyRequest,
	logger *zap.Logger,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := clientid.Compound(policy.Label, identify(r))

			d := limiter.Check(r.Context(), identifier, policy)
			if d.Allowed {
				for name, value := range d.Headers() {
					w.Header().Set(name, value)
				}

				next.ServeHTTP(w, r)

				return
			}

			level := zap.DebugLevel
			if d.FirstRejection() {
				level = zap.WarnLevel
			}

			logger.Log(level, "quota exceeded",
				zap.String("identifier", identifier),
				zap.String("policy", policy.Label),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)

			rejection := d.Reject(limiter.Now())

			for name, value := range rejection.Headers {
				w.Header().Set(name, value)
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rejection.Status)

			if err := json.NewEncoder(w).Encode(rejection.Body); err != nil {
				logger.Debug("failed to write rejection body", zap.Error(err))
			}
		})
	}
}

// ruleIdentifier returns the identifier the rejecting policy was counted against.
func ruleIdentifier(rules []ratelimit.Rule, policy ratelimit.Policy) string {
	for _, r := range rules {
		if r.Policy == policy {
			return r.Identifier
		}
	}

	return ""
}

// operationPath extracts the route template from the operation, if available.
func operationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ctx.URL().Path
}
