// Package container wires the application with samber/do injector packages.
package container

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/quota-guard/internal/clientid"
	"go.uber.org/zap"
)

// Options configures the server. humacli maps each field to a flag and a SERVICE_* variable.
type Options struct {
	Port           int    `default:"8888"                                       help:"Port to listen on"                                                   short:"p"`
	RedisAddr      string `default:""                                           help:"Redis address for shared counters and events, empty keeps both in process" short:"r"`
	RedisPassword  string `default:""                                           help:"Redis password"`
	RedisDB        int    `default:"0"                                          help:"Redis database number"`
	RedisTimeoutMs int    `default:"250"                                        help:"Per-operation Redis timeout in milliseconds"`
	MaxEntries     int    `default:"100000"                                     help:"Capacity of the in-process counter store"`
	SweepSeconds   int    `default:"60"                                         help:"Seconds between sweeps of expired in-process counters"`
	DatabaseURL    string `default:""                                           help:"PostgreSQL URL for the audit log, empty logs events instead"`
	LogFormat      string `default:"json"                                       help:"Log format: json or console"`
	TrustedHeaders string `default:"X-Forwarded-For,X-Real-IP,CF-Connecting-IP" help:"Comma separated client address headers in priority order"`
	AdminToken     string `default:""                                           help:"Shared secret for the /admin routes, empty disables them"`
}

// InProcess reports whether counters and events stay inside this process.
func (o *Options) InProcess() bool {
	return o.RedisAddr == ""
}

// ClientIPHeaders returns the trusted headers as a list.
func (o *Options) ClientIPHeaders() []string {
	var headers []string

	for _, h := range strings.Split(o.TrustedHeaders, ",") {
		if h = strings.TrimSpace(h); h != "" {
			headers = append(headers, h)
		}
	}

	return headers
}

// LoggerPackage provides the zap logger.
func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "console" {
			return zap.NewDevelopment()
		}

		return zap.NewProduction()
	})
}

// RedisConn holds the optional Redis client. Client is nil in process mode.
type RedisConn struct {
	Client *redis.Client
}

// Shutdown closes the client if one was created.
func (r *RedisConn) Shutdown() error {
	if r.Client == nil {
		return nil
	}

	return r.Client.Close()
}

// RedisPackage provides the Redis connection. The client connects lazily.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisConn, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.InProcess() {
			return &RedisConn{}, nil
		}

		timeout := time.Duration(opts.RedisTimeoutMs) * time.Millisecond

		return &RedisConn{Client: redis.NewClient(&redis.Options{
			Addr:         opts.RedisAddr,
			Password:     opts.RedisPassword,
			DB:           opts.RedisDB,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			MaxRetries:   1,
		})}, nil
	})
}

// PostgresConn holds the optional audit database pool. Pool is nil without a DatabaseURL.
type PostgresConn struct {
	Pool *pgxpool.Pool
}

// Shutdown closes the pool if one was created.
func (p *PostgresConn) Shutdown() error {
	if p.Pool != nil {
		p.Pool.Close()
	}

	return nil
}

// PostgresPackage provides the audit database pool.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*PostgresConn, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.DatabaseURL == "" {
			return &PostgresConn{}, nil
		}

		pool, err := pgxpool.New(context.Background(), opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect audit database: %w", err)
		}

		return &PostgresConn{Pool: pool}, nil
	})
}

// ClientIDPackage provides the client address resolver.
func ClientIDPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*clientid.Resolver, error) {
		opts := do.MustInvoke[*Options](i)

		return clientid.NewResolver(opts.ClientIPHeaders()...), nil
	})
}
