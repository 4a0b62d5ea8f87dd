package bootstrap

import (
	"strings"
	"time"

	"scheduler_server/adapter/in/http"
	"scheduler_server/config"
	"scheduler_server/infra/middleware"
	"scheduler_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const chatStreamPath = "/api/v1/chat/stream"

func NewAPI(cfg *config.Config) (*fiber.App, *Dependencies, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, nil, err
	}
	return NewApp(cfg, deps), deps, cleanup, nil
}

// NewApp builds the Fiber app over already constructed dependencies.
func NewApp(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
		ServerHeader:          "",
		DisableDefaultDate:    true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	// SSE must reach the client unbuffered.
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == chatStreamPath
		},
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health check (no auth required)
	healthHandler := http.NewHealthHandler(deps.Latency)
	healthHandler.AddCheck("store", http.PingFunc(deps.HealthCheck))
	healthHandler.SetRedis(deps.Redis)
	if deps.SQLDB != nil {
		healthHandler.SetPoolStats(deps.SQLDB.Stats)
	}
	if deps.GoogleCalendar != nil {
		healthHandler.AddBreaker("google_calendar", deps.GoogleCalendar.BreakerState)
	}
	if deps.Search != nil {
		healthHandler.AddBreaker("serper", deps.Search.BreakerState)
	}
	healthHandler.Register(app)

	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret, deps.Profiles))

	var counter middleware.WindowCounter
	if deps.Cache != nil {
		counter = deps.Cache
	}
	chatLimiter := middleware.NewRateLimiter("chat", cfg.ChatRateLimit, time.Minute, counter)

	http.NewChatHandler(deps.Chat, logger.Component("http")).Register(api, chatLimiter.Handler())
	http.NewCalendarHandler(deps.Engine, cfg.CompanyName, logger.Component("http")).Register(api)

	return app
}
