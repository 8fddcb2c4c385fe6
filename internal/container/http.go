package container

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jaevor/go-nanoid"
	"github.com/samber/do"
	"github.com/serroba/quota-guard/internal/audit"
	"github.com/serroba/quota-guard/internal/clientid"
	"github.com/serroba/quota-guard/internal/handlers"
	"github.com/serroba/quota-guard/internal/health"
	"github.com/serroba/quota-guard/internal/messaging"
	"github.com/serroba/quota-guard/internal/middleware"
	"github.com/serroba/quota-guard/internal/ratelimit"
	"go.uber.org/zap"
)

const jobIDLength = 21

// AdminPrefix is the path prefix of the operator-only routes.
const AdminPrefix = "/admin"

// HTTPPackage provides the router and the Huma API with every route registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*chi.Mux, error) {
		limiter := do.MustInvoke[*ratelimit.Limiter](i)
		ips := do.MustInvoke[*clientid.Resolver](i)
		logger := do.MustInvoke[*zap.Logger](i).Named("http")

		router := chi.NewMux()
		router.Use(middleware.HTTPQuota(limiter, ratelimit.PolicyEdge, middleware.IdentifyByIP(ips), logger))

		return router, nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		router := do.MustInvoke[*chi.Mux](i)
		limiter := do.MustInvoke[*ratelimit.Limiter](i)
		ips := do.MustInvoke[*clientid.Resolver](i)
		resolver := do.MustInvoke[ratelimit.RuleResolver](i)
		logger := do.MustInvoke[*zap.Logger](i).Named("http")

		api := humachi.New(router, huma.DefaultConfig("Quota Guard", "1.0.0"))
		api.UseMiddleware(
			middleware.RequestMeta(api, ips),
			middleware.Quota(api, limiter, resolver,
				do.MustInvoke[messaging.Publish[audit.QuotaRejectedEvent]](i), logger),
		)

		newJobID, err := nanoid.Standard(jobIDLength)
		if err != nil {
			return nil, err
		}

		handlers.RegisterRoutes(api,
			handlers.NewWebhookHandler(limiter,
				do.MustInvoke[messaging.Publish[audit.WebhookReceivedEvent]](i), logger),
			handlers.NewExportHandler(newJobID,
				do.MustInvoke[messaging.Publish[audit.ExportRequestedEvent]](i), logger),
		)
		quota := handlers.NewQuotaHandler(limiter, logger)
		handlers.RegisterQuotaRoutes(api, quota)

		admin := huma.NewGroup(api, AdminPrefix)
		admin.UseMiddleware(middleware.AdminOnly(api, do.MustInvoke[*Options](i).AdminToken, logger))
		handlers.RegisterAdminRoutes(admin, quota)

		health.RegisterRoutes(api, newHealthHandler(i, limiter))

		return api, nil
	})
}

// newHealthHandler passes only configured dependencies so absent ones report as disabled.
func newHealthHandler(i *do.Injector, limiter *ratelimit.Limiter) *health.Handler {
	var redisChecker, pgChecker health.Checker

	if conn := do.MustInvoke[*RedisConn](i); conn.Client != nil {
		redisChecker = health.NewRedisChecker(conn.Client)
	}

	if conn := do.MustInvoke[*PostgresConn](i); conn.Pool != nil {
		pgChecker = conn.Pool
	}

	return health.NewHandler(redisChecker, pgChecker, limiter.Backend())
}
