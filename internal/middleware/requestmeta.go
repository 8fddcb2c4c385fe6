package middleware

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-guard/internal/clientid"
	"github.com/serroba/quota-guard/internal/handlers"
)

// RequestMeta is a middleware that adds the validated client IP, user-agent and
// shop domain to the request context.
func RequestMeta(_ huma.API, ips *clientid.Resolver) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		meta := handlers.RequestMeta{
			ClientIP:  ips.ClientIP(ctx.Header, ctx.RemoteAddr()),
			UserAgent: clientid.Truncate(ctx.Header("User-Agent"), clientid.MaxPartLength),
		}

		if shop := ctx.Header(handlers.HeaderShopDomain); shop != "" {
			meta.Shop = clientid.Sanitize(shop)
		}

		newCtx := handlers.ContextWithRequestMeta(ctx.Context(), meta)
		ctx = huma.WithContext(ctx, newCtx)

		next(ctx)
	}
}
