package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store backends
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	StoreBackend string `envconfig:"STORE_BACKEND" default:"mongo"`
	MongoDBURL   string `envconfig:"MONGODB_URL"`
	MongoDBName  string `envconfig:"MONGODB_DATABASE" default:"scheduler"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	RedisURL     string `envconfig:"REDIS_URL"`

	// JWT
	JWTSecret string `envconfig:"JWT_SECRET_KEY"`

	// OpenAI
	OpenAIAPIKey   string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string        `envconfig:"OPENAI_BASE_URL"`
	LLMModel       string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMMaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"2048"`
	LLMTemperature float64       `envconfig:"LLM_TEMPERATURE" default:"0"`
	LLMTimeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`

	// Agent
	AgentMaxSteps int    `envconfig:"AGENT_MAX_STEPS" default:"25"`
	AssistantName string `envconfig:"ASSISTANT_NAME" default:"Orion"`
	CompanyName   string `envconfig:"COMPANY_NAME" default:"Singularity Labs"`

	// Google Calendar
	CalendarID              string `envconfig:"CALENDAR_ID" default:"primary"`
	GoogleCredentialsBase64 string `envconfig:"GOOGLE_CREDENTIALS_BASE64"`

	// Search
	SerperAPIKey   string        `envconfig:"SERPER_API_KEY"`
	SerperBaseURL  string        `envconfig:"SERPER_BASE_URL" default:"https://google.serper.dev"`
	SearchCacheTTL time.Duration `envconfig:"SEARCH_CACHE_TTL" default:"10m"`

	// Scheduling
	CompanyTimezone    string `envconfig:"COMPANY_TIMEZONE" default:"UTC"`
	BusinessHoursStart string `envconfig:"BUSINESS_HOURS_START" default:"10:00"`
	BusinessHoursEnd   string `envconfig:"BUSINESS_HOURS_END" default:"18:00"`
	SlotStepMinutes    int    `envconfig:"SLOT_STEP_MINUTES" default:"30"`
	MeetingBufferMin   int    `envconfig:"MEETING_BUFFER_MINUTES" default:"15"`

	// Pending sweeper
	PendingTTL    time.Duration `envconfig:"PENDING_TTL" default:"10m"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`

	// Rate limit (chat requests per user per minute)
	ChatRateLimit int `envconfig:"CHAT_RATE_LIMIT" default:"30"`

	// CORS
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMongo:
		if c.MongoDBURL == "" {
			return fmt.Errorf("MONGODB_URL is required for store backend %q", c.StoreBackend)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store backend %q", c.StoreBackend)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if _, err := time.LoadLocation(c.CompanyTimezone); err != nil {
		return fmt.Errorf("invalid COMPANY_TIMEZONE %q: %w", c.CompanyTimezone, err)
	}

	open, err := ParseClock(c.BusinessHoursStart)
	if err != nil {
		return fmt.Errorf("BUSINESS_HOURS_START: %w", err)
	}
	closeAt, err := ParseClock(c.BusinessHoursEnd)
	if err != nil {
		return fmt.Errorf("BUSINESS_HOURS_END: %w", err)
	}
	if closeAt <= open {
		return fmt.Errorf("business hours end %s must be after start %s", c.BusinessHoursEnd, c.BusinessHoursStart)
	}

	if c.SlotStepMinutes <= 0 {
		return fmt.Errorf("SLOT_STEP_MINUTES must be positive")
	}
	if c.MeetingBufferMin < 0 {
		return fmt.Errorf("MEETING_BUFFER_MINUTES must not be negative")
	}
	if c.AgentMaxSteps <= 0 {
		return fmt.Errorf("AGENT_MAX_STEPS must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CompanyLocation returns the company timezone. Validate has already checked it.
func (c *Config) CompanyLocation() *time.Location {
	loc, err := time.LoadLocation(c.CompanyTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BusinessHours returns opening and closing as minutes after midnight.
func (c *Config) BusinessHours() (open, closeAt int) {
	open, _ = ParseClock(c.BusinessHoursStart)
	closeAt, _ = ParseClock(c.BusinessHoursEnd)
	return open, closeAt
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h == 24 && m != 0 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}
