package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-guard/internal/handlers"
	"go.uber.org/zap"
)

// HeaderAdminToken carries the operator secret for administrative routes.
const HeaderAdminToken = "X-Admin-Token"

// AdminOnly returns a Huma middleware that admits only requests carrying token in
// HeaderAdminToken. An empty token disables administration: every request is refused.
func AdminOnly(api huma.API, token string, logger *zap.Logger) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if token == "" {
			_ = huma.WriteErr(api, ctx, http.StatusForbidden, "administration is disabled")

			return
		}

		given := ctx.Header(HeaderAdminToken)
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			logger.Warn("admin request refused",
				zap.String("method", ctx.Method()),
				zap.String("path", ctx.URL().Path),
				zap.String("client_ip", handlers.RequestMetaFromContext(ctx.Context()).ClientIP),
				zap.Bool("token_present", given != ""),
			)

			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid admin token")

			return
		}

		next(ctx)
	}
}
