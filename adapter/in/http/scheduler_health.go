package http

import (
	"context"
	"database/sql"
	"time"

	"scheduler_server/infra/database"
	"scheduler_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to HealthChecker.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type namedCheck struct {
	name    string
	checker HealthChecker
}

type HealthHandler struct {
	checks    []namedCheck
	redis     *redis.Client
	poolStats func() sql.DBStats
	breakers  map[string]func() string
	latency   *metrics.LatencyRegistry
}

func NewHealthHandler(latency *metrics.LatencyRegistry) *HealthHandler {
	return &HealthHandler{latency: latency, breakers: make(map[string]func() string)}
}

// AddCheck registers a dependency pinged by /ready.
func (h *HealthHandler) AddCheck(name string, checker HealthChecker) {
	h.checks = append(h.checks, namedCheck{name: name, checker: checker})
}

func (h *HealthHandler) SetRedis(client *redis.Client) {
	h.redis = client
	if client != nil {
		h.AddCheck("redis", PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() }))
	}
}

// SetPoolStats reports a database/sql pool on /health.
func (h *HealthHandler) SetPoolStats(stats func() sql.DBStats) {
	h.poolStats = stats
}

// AddBreaker reports a circuit breaker state on /health.
func (h *HealthHandler) AddBreaker(name string, state func() string) {
	h.breakers[name] = state
}

func (h *HealthHandler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	app.Get("/health/tools", h.Tools)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.redis != nil {
		body["redis"] = database.GetRedisStats(h.redis)
	}
	if h.poolStats != nil {
		body["database_pool"] = metrics.AssessPool(h.poolStats())
	}
	if len(h.breakers) > 0 {
		states := make(map[string]string, len(h.breakers))
		for name, state := range h.breakers {
			states[name] = state()
		}
		body["circuit_breakers"] = states
	}
	return c.JSON(body)
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	allHealthy := true
	for _, check := range h.checks {
		if err := check.checker.Ping(ctx); err != nil {
			checks[check.name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks[check.name] = "healthy"
		}
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Tools reports per-tool latency and failure counts.
func (h *HealthHandler) Tools(c *fiber.Ctx) error {
	tools := make(map[string]any)
	if h.latency != nil {
		for name, stats := range h.latency.AllStats() {
			tools[name] = stats.ToMap()
		}
	}
	return c.JSON(fiber.Map{
		"tools":     tools,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
