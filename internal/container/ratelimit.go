package container

import (
	"time"

	"github.com/samber/do"
	"github.com/serroba/quota-guard/internal/clientid"
	"github.com/serroba/quota-guard/internal/ratelimit"
	"github.com/serroba/quota-guard/internal/store"
	"go.uber.org/zap"
)

// RateLimitPackage provides the limiter over Redis or the in-process store.
// The limiter is shut down with the injector, which stops the sweep.
func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*ratelimit.Limiter, error) {
		opts := do.MustInvoke[*Options](i)
		conn := do.MustInvoke[*RedisConn](i)
		logger := do.MustInvoke[*zap.Logger](i).Named("ratelimit")

		redisCfg := store.DefaultRedisLimitConfig()
		redisCfg.OpTimeout = time.Duration(opts.RedisTimeoutMs) * time.Millisecond

		s := store.NewRateLimitStore(conn.Client, store.RateLimitConfig{
			MaxEntries:    opts.MaxEntries,
			SweepInterval: time.Duration(opts.SweepSeconds) * time.Second,
			Redis:         redisCfg,
		}, logger)

		return ratelimit.NewLimiter(s, logger), nil
	})

	do.Provide(i, func(i *do.Injector) (ratelimit.RuleResolver, error) {
		ips := do.MustInvoke[*clientid.Resolver](i)

		return ratelimit.NewOperationRuleResolver(
			ratelimit.NewMethodRuleResolver(ips, ratelimit.PolicyAPI),
		), nil
	})
}
