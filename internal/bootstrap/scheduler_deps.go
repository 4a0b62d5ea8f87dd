package bootstrap

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"scheduler_server/adapter/in/worker"
	"scheduler_server/adapter/out/memstore"
	"scheduler_server/adapter/out/mongodb"
	"scheduler_server/adapter/out/postgres"
	"scheduler_server/adapter/out/provider"
	"scheduler_server/adapter/out/search"
	"scheduler_server/config"
	"scheduler_server/core/agent"
	"scheduler_server/core/agent/llm"
	"scheduler_server/core/agent/prompt"
	"scheduler_server/core/agent/tools"
	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"
	"scheduler_server/core/service/booking"
	"scheduler_server/core/service/chat"
	"scheduler_server/infra/database"
	"scheduler_server/pkg/cache"
	"scheduler_server/pkg/logger"
	"scheduler_server/pkg/metrics"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// devUserID is the profile seeded for the in-memory backend in development.
const devUserID = "dev-user"

type Dependencies struct {
	Config  *config.Config
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Cache   *cache.RedisCache

	// Repositories
	Store    out.CalendarStore
	Profiles out.ProfileRepository

	// External services
	Gateway        out.CalendarGateway
	GoogleCalendar *provider.GoogleCalendarGateway
	Search         *search.SerperClient

	// Agent
	Latency  *metrics.LatencyRegistry
	Registry *tools.Registry
	Model    *llm.Client
	Prompt   *prompt.Builder
	Loop     *agent.Loop

	// Services
	Engine     *booking.Engine
	SlotFinder *booking.SlotFinder
	Chat       *chat.Service
	Sweeper    *worker.PendingSweeper
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	ctx := context.Background()
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	deps := &Dependencies{Config: cfg}

	if err := deps.initStore(ctx, cfg, &cleanups); err != nil {
		cleanup()
		return nil, nil, err
	}

	// Redis is optional: search results go uncached and rate limits stay in process.
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(ctx, cfg.RedisURL, database.DefaultRedisConfig())
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without cache")
		} else {
			deps.Redis = redisClient
			deps.Cache = cache.NewRedisCache(redisClient)
			cleanups = append(cleanups, func() { redisClient.Close() })
			logger.Info("Redis connected")
		}
	}

	if err := deps.initGateway(ctx, cfg); err != nil {
		cleanup()
		return nil, nil, err
	}

	deps.Engine = booking.NewEngine(deps.Store, deps.Gateway)

	open, closeAt := cfg.BusinessHours()
	deps.SlotFinder = booking.NewSlotFinder(deps.Store, booking.SlotConfig{
		CompanyLocation: cfg.CompanyLocation(),
		OpenMinute:      open,
		CloseMinute:     closeAt,
		Step:            time.Duration(cfg.SlotStepMinutes) * time.Minute,
		Buffer:          time.Duration(cfg.MeetingBufferMin) * time.Minute,
	})

	deps.Latency = metrics.NewLatencyRegistry(500)
	deps.Registry = tools.NewRegistry(deps.Latency, logger.Component("tools"))
	deps.Registry.RegisterAll(
		tools.NewCreateEventTool(deps.Engine),
		tools.NewListEventsTool(deps.Engine),
		tools.NewUpdateEventTool(deps.Engine),
		tools.NewDeleteEventTool(deps.Engine),
		tools.NewFindSlotsTool(deps.SlotFinder),
		tools.NewUpdateTimezoneTool(deps.Profiles),
	)

	if cfg.SerperAPIKey != "" {
		var searchCache search.Cache
		if deps.Cache != nil {
			searchCache = deps.Cache
		}
		deps.Search = search.NewSerperClient(search.SerperConfig{
			APIKey:   cfg.SerperAPIKey,
			BaseURL:  cfg.SerperBaseURL,
			CacheTTL: cfg.SearchCacheTTL,
		}, searchCache, logger.Component("search"))
		deps.Registry.RegisterAll(
			tools.NewSearchWebTool(deps.Search),
			tools.NewSearchNewsTool(deps.Search),
		)
	} else {
		logger.Warn("SERPER_API_KEY not set, search tools disabled")
	}

	deps.Model = llm.NewClientWithConfig(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
	})
	deps.Prompt = prompt.NewBuilder(prompt.Config{
		AssistantName:   cfg.AssistantName,
		CompanyName:     cfg.CompanyName,
		CompanyTimezone: cfg.CompanyTimezone,
		OpenClock:       cfg.BusinessHoursStart,
		CloseClock:      cfg.BusinessHoursEnd,
	})
	deps.Loop = agent.NewLoop(deps.Model, deps.Registry, cfg.AgentMaxSteps, logger.Component("agent"))
	deps.Chat = chat.NewService(deps.Loop, deps.Prompt, logger.Component("chat"))

	deps.Sweeper = worker.NewPendingSweeper(deps.Store, cfg.PendingTTL, cfg.SweepInterval)

	logger.Info("Dependencies ready: store=%s tools=%d model=%s", cfg.StoreBackend, len(deps.Registry.List()), deps.Model.Model())
	return deps, cleanup, nil
}

func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config, cleanups *[]func()) error {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			return err
		}
		*cleanups = append(*cleanups, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		})
		d.MongoDB = client

		db := client.Database(cfg.MongoDBName)
		store := mongodb.NewBookingStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure booking indexes: %w", err)
		}
		d.Store = store
		d.Profiles = mongodb.NewProfileRepository(db)
		logger.Info("MongoDB connected: %s", cfg.MongoDBName)

	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPostgresConfig())
		if err != nil {
			return err
		}
		*cleanups = append(*cleanups, func() { db.Close() })
		d.SQLDB = db

		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		d.Store = postgres.NewBookingStore(db)
		d.Profiles = postgres.NewProfileRepository(db)
		logger.Info("PostgreSQL connected")

	case config.StoreMemory:
		d.Store = memstore.NewBookingStore()
		var seed []*domain.Profile
		if cfg.IsDevelopment() {
			seed = append(seed, &domain.Profile{ID: devUserID, Email: "dev@localhost", Timezone: cfg.CompanyTimezone})
			logger.Info("Seeded development profile: %s", devUserID)
		}
		d.Profiles = memstore.NewProfileStore(seed...)
		logger.Warn("Using in-memory store, bookings are lost on restart")

	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return nil
}

func (d *Dependencies) initGateway(ctx context.Context, cfg *config.Config) error {
	if cfg.GoogleCredentialsBase64 == "" {
		if cfg.IsProduction() {
			return fmt.Errorf("GOOGLE_CREDENTIALS_BASE64 is required in production")
		}
		d.Gateway = memstore.NewCalendarGateway()
		logger.Warn("Google credentials not set, using in-process calendar")
		return nil
	}

	credentials, err := base64.StdEncoding.DecodeString(cfg.GoogleCredentialsBase64)
	if err != nil {
		return fmt.Errorf("decode GOOGLE_CREDENTIALS_BASE64: %w", err)
	}
	gateway, err := provider.NewGoogleCalendarGateway(ctx, provider.GoogleCalendarConfig{
		CalendarID:      cfg.CalendarID,
		CredentialsJSON: credentials,
	}, logger.Component("calendar"))
	if err != nil {
		return err
	}
	d.GoogleCalendar = gateway
	d.Gateway = gateway
	logger.Info("Google Calendar configured: %s", cfg.CalendarID)
	return nil
}

// HealthCheck pings the store backend.
func (d *Dependencies) HealthCheck(ctx context.Context) error {
	switch {
	case d.MongoDB != nil:
		return d.MongoDB.Ping(ctx, readpref.Primary())
	case d.SQLDB != nil:
		return d.SQLDB.PingContext(ctx)
	}
	return nil
}
