package store

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/quota-guard/internal/ratelimit"
	"go.uber.org/zap"
)

// RateLimitConfig selects and tunes the rate limit backend.
type RateLimitConfig struct {
	MaxEntries    int
	SweepInterval time.Duration
	Redis         RedisLimitConfig
}

// NewRateLimitStore returns the Redis store when a client is configured and a started
// in-memory store otherwise. The choice is made once and logged.
func NewRateLimitStore(client *redis.Client, cfg RateLimitConfig, logger *zap.Logger) ratelimit.Store {
	if client != nil {
		logger.Info("rate limiting with redis backend",
			zap.String("addr", client.Options().Addr),
			zap.Duration("op_timeout", cfg.Redis.OpTimeout),
		)

		return NewRateLimitRedisStore(client, cfg.Redis, logger)
	}

	mem := NewRateLimitMemoryStore(
		WithMaxEntries(cfg.MaxEntries),
		WithSweepInterval(cfg.SweepInterval),
		WithMemoryLogger(logger),
	)
	mem.Start()

	logger.Info("rate limiting with in-process backend",
		zap.Int("max_entries", mem.maxEntries),
		zap.Duration("sweep_interval", mem.sweepInterval),
	)

	return mem
}
