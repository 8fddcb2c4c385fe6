package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/quota-guard/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

//go:embed ratelimit_increment.lua
var incrementScriptSource string

var incrementScript = redis.NewScript(incrementScriptSource)

var errUnexpectedReply = errors.New("unexpected increment script reply")

// RedisLimitConfig tunes the Redis counter store.
type RedisLimitConfig struct {
	// OpTimeout bounds every round trip.
	OpTimeout time.Duration
	// ConnectAttempts is the number of pings tried before the backend is marked down.
	ConnectAttempts uint
	// ConnectBackoff is the base delay between connection attempts.
	ConnectBackoff time.Duration
	// CoolDown is how long a failed backend is skipped before reconnecting.
	CoolDown time.Duration
}

// DefaultRedisLimitConfig returns the defaults used by the server.
func DefaultRedisLimitConfig() RedisLimitConfig {
	return RedisLimitConfig{
		OpTimeout:       250 * time.Millisecond,
		ConnectAttempts: 3,
		ConnectBackoff:  20 * time.Millisecond,
		CoolDown:        5 * time.Second,
	}
}

// RateLimitRedisStore is a Redis implementation of ratelimit.Store shared by all instances.
// It connects lazily and reports ErrUnavailable instead of blocking when Redis is down.
type RateLimitRedisStore struct {
	client *redis.Client
	cfg    RedisLimitConfig
	logger *zap.Logger
	now    func() time.Time

	connect   singleflight.Group
	mu        sync.Mutex
	connected bool
	downUntil time.Time
}

// NewRateLimitRedisStore creates a Redis-backed rate limit store. No connection is made
// until the first operation.
func NewRateLimitRedisStore(client *redis.Client, cfg RedisLimitConfig, logger *zap.Logger) *RateLimitRedisStore {
	defaults := DefaultRedisLimitConfig()

	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaults.OpTimeout
	}

	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = defaults.ConnectAttempts
	}

	if cfg.ConnectBackoff <= 0 {
		cfg.ConnectBackoff = defaults.ConnectBackoff
	}

	if cfg.CoolDown <= 0 {
		cfg.CoolDown = defaults.CoolDown
	}

	return &RateLimitRedisStore{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Backend implements ratelimit.Backend.
func (r *RateLimitRedisStore) Backend() string {
	return "redis"
}

func (r *RateLimitRedisStore) Increment(ctx context.Context, key string, window time.Duration) (ratelimit.Entry, error) {
	if err := r.ensureConnected(ctx); err != nil {
		return ratelimit.Entry{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	reply, err := incrementScript.Run(opCtx, r.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return ratelimit.Entry{}, r.fail(ctx, "increment", key, err)
	}

	if len(reply) != 2 {
		return ratelimit.Entry{}, fmt.Errorf("%w: %v", errUnexpectedReply, reply)
	}

	ttl := time.Duration(reply[1]) * time.Millisecond
	if ttl <= 0 {
		ttl = window
	}

	return ratelimit.Entry{Count: reply[0], ResetAt: r.now().Add(ttl)}, nil
}

func (r *RateLimitRedisStore) Get(ctx context.Context, key string) (ratelimit.Entry, bool, error) {
	if err := r.ensureConnected(ctx); err != nil {
		return ratelimit.Entry{}, false, err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	pipe := r.client.Pipeline()
	getCmd := pipe.Get(opCtx, key)
	ttlCmd := pipe.PTTL(opCtx, key)

	if _, err := pipe.Exec(opCtx); err != nil && !errors.Is(err, redis.Nil) {
		return ratelimit.Entry{}, false, r.fail(ctx, "get", key, err)
	}

	count, err := getCmd.Int64()
	if errors.Is(err, redis.Nil) {
		return ratelimit.Entry{}, false, nil
	}

	if err != nil {
		return ratelimit.Entry{}, false, fmt.Errorf("parse counter %q: %w", key, err)
	}

	// Negative PTTL means missing or without expiry; the next increment repairs the latter.
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return ratelimit.Entry{}, false, nil
	}

	return ratelimit.Entry{Count: count, ResetAt: r.now().Add(ttl)}, true, nil
}

func (r *RateLimitRedisStore) Delete(ctx context.Context, key string) error {
	if err := r.ensureConnected(ctx); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	if err := r.client.Del(opCtx, key).Err(); err != nil {
		return r.fail(ctx, "delete", key, err)
	}

	return nil
}

// Size returns DBSIZE, which counts every key in the selected database.
func (r *RateLimitRedisStore) Size(ctx context.Context) (int64, error) {
	if err := r.ensureConnected(ctx); err != nil {
		return 0, err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	n, err := r.client.DBSize(opCtx).Result()
	if err != nil {
		return 0, r.fail(ctx, "size", "", err)
	}

	return n, nil
}

// ensureConnected pings Redis on first use and after a cool-down, with bounded retries.
// Concurrent callers share one connection attempt.
func (r *RateLimitRedisStore) ensureConnected(ctx context.Context) error {
	r.mu.Lock()
	connected, downUntil := r.connected, r.downUntil
	r.mu.Unlock()

	if connected {
		return nil
	}

	if r.now().Before(downUntil) {
		return ratelimit.ErrUnavailable
	}

	_, err, _ := r.connect.Do("connect", func() (any, error) {
		return nil, r.ping(ctx)
	})

	return err
}

func (r *RateLimitRedisStore) ping(ctx context.Context) error {
	err := retry.Retry(func(_ uint) error {
		pingCtx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
		defer cancel()

		return r.client.Ping(pingCtx).Err()
	},
		strategy.Limit(r.cfg.ConnectAttempts),
		strategy.Backoff(backoff.BinaryExponential(r.cfg.ConnectBackoff)),
	)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.connected = false
		r.downUntil = r.now().Add(r.cfg.CoolDown)

		r.logger.Warn("redis unreachable, rate limiting fails open",
			zap.Uint("attempts", r.cfg.ConnectAttempts),
			zap.Duration("cool_down", r.cfg.CoolDown),
			zap.Error(err),
		)

		return fmt.Errorf("%w: %w", ratelimit.ErrUnavailable, err)
	}

	if !r.connected {
		r.logger.Info("redis rate limit backend connected")
	}

	r.connected = true

	return nil
}

// fail records an operation error. Unless the caller gave up first, the backend is marked
// down so later calls fail fast until the cool-down ends.
func (r *RateLimitRedisStore) fail(ctx context.Context, op, key string, err error) error {
	if ctx.Err() == nil {
		r.mu.Lock()
		r.connected = false
		r.downUntil = r.now().Add(r.cfg.CoolDown)
		r.mu.Unlock()
	}

	r.logger.Warn("redis rate limit operation failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)

	return fmt.Errorf("%w: %s: %w", ratelimit.ErrUnavailable, op, err)
}

// Compile-time check.
var _ ratelimit.Store = (*RateLimitRedisStore)(nil)
