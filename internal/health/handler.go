package health

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/redis/go-redis/v9"
)

// Dependency states reported by the health endpoint.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDisabled  = "disabled"
)

const pingTimeout = time.Second

// Checker defines the interface for checking service health.
type Checker interface {
	Ping(ctx context.Context) error
}

// RedisChecker adapts redis.Client to Checker interface.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Ping checks Redis connectivity.
func (r *RedisChecker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Handler handles health check operations.
// A nil checker marks its dependency as disabled rather than unhealthy.
type Handler struct {
	redis        Checker
	postgres     Checker
	quotaBackend string
}

// NewHandler creates a new health handler. quotaBackend names the counter store in use.
func NewHandler(redis, postgres Checker, quotaBackend string) *Handler {
	return &Handler{redis: redis, postgres: postgres, quotaBackend: quotaBackend}
}

// Response is the response for health check endpoint.
type Response struct {
	Body struct {
		Status       string `json:"status"`
		Redis        string `json:"redis"`
		Postgres     string `json:"postgres"`
		QuotaBackend string `json:"quotaBackend"`
	}
}

// Check performs a health check of the application and its dependencies.
// Quota enforcement fails open, so a broken dependency degrades the service but never fails it.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	resp := &Response{}
	resp.Body.Status = "ok"
	resp.Body.QuotaBackend = h.quotaBackend
	resp.Body.Redis = probe(ctx, h.redis)
	resp.Body.Postgres = probe(ctx, h.postgres)

	if resp.Body.Redis == StatusUnhealthy || resp.Body.Postgres == StatusUnhealthy {
		resp.Body.Status = "degraded"
	}

	return resp, nil
}

func probe(ctx context.Context, c Checker) string {
	if c == nil {
		return StatusDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		return StatusUnhealthy
	}

	return StatusHealthy
}

// RegisterRoutes registers health check routes.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Get(api, "/health", h.Check)
}
