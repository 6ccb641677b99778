package domain

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which adapters are used by default
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Engine     EngineConfig     `json:"engine"`
	Auth       AuthConfig       `json:"auth"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// EngineConfig holds evaluation engine settings.
type EngineConfig struct {
	// QuestionnairePath replaces the embedded catalog when set.
	QuestionnairePath string `json:"questionnairePath"`

	// AlertRulesPath replaces the default alert rules when set.
	AlertRulesPath string `json:"alertRulesPath"`

	// WriteTimeout bounds a persistence write, which is detached from
	// caller cancellation.
	WriteTimeout time.Duration `json:"writeTimeout"`

	// PendingMaxAge is the default window for pending-evaluation checks.
	PendingMaxAge time.Duration `json:"pendingMaxAge"`

	// AlertWorker enables the bus subscriber that raises health alerts.
	AlertWorker bool `json:"alertWorker"`
}

// AuthConfig configures how the evaluator identity is resolved.
type AuthConfig struct {
	// JWTSecret enables bearer token validation (HS256). When empty the
	// X-Evaluator header is trusted, which is only suitable for development.
	JWTSecret string `json:"-"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./healthscore.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			LatestTTL:    10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Engine: EngineConfig{
			WriteTimeout:  15 * time.Second,
			PendingMaxAge: 30 * 24 * time.Hour,
			AlertWorker:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "healthscore",
		},
	}
}

// ProConfig returns a configuration for the pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "healthscore",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		LatestTTL:      10 * time.Minute,
		LatestLocalTTL: 5 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig picks the tier from HEALTHSCORE_TIER and applies env overrides.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if os.Getenv("HEALTHSCORE_TIER") == string(TierPro) {
		cfg = ProConfig()
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides individual settings from HEALTHSCORE_* variables.
func (c *Config) ApplyEnv() {
	c.Server.Host = getEnv("HEALTHSCORE_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("HEALTHSCORE_PORT", c.Server.Port)

	c.Repository.Driver = getEnv("HEALTHSCORE_DB_DRIVER", c.Repository.Driver)
	c.Repository.SQLitePath = getEnv("HEALTHSCORE_SQLITE_PATH", c.Repository.SQLitePath)
	c.Repository.PostgresHost = getEnv("HEALTHSCORE_POSTGRES_HOST", c.Repository.PostgresHost)
	c.Repository.PostgresPort = getEnvAsInt("HEALTHSCORE_POSTGRES_PORT", c.Repository.PostgresPort)
	c.Repository.PostgresUser = getEnv("HEALTHSCORE_POSTGRES_USER", c.Repository.PostgresUser)
	c.Repository.PostgresPassword = getEnv("HEALTHSCORE_POSTGRES_PASSWORD", c.Repository.PostgresPassword)
	c.Repository.PostgresDB = getEnv("HEALTHSCORE_POSTGRES_DB", c.Repository.PostgresDB)
	c.Repository.PostgresDSN = getEnv("HEALTHSCORE_POSTGRES_DSN", c.Repository.PostgresDSN)
	c.Repository.MongoURI = getEnv("HEALTHSCORE_MONGO_URI", c.Repository.MongoURI)
	c.Repository.MongoDatabase = getEnv("HEALTHSCORE_MONGO_DB", c.Repository.MongoDatabase)

	c.Cache.Type = getEnv("HEALTHSCORE_CACHE", c.Cache.Type)
	c.Cache.RedisAddr = getEnv("HEALTHSCORE_REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getEnv("HEALTHSCORE_REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.LatestLocalTTL = getEnvAsDuration("HEALTHSCORE_LATEST_LOCAL_TTL", c.Cache.LatestLocalTTL)

	c.EventBus.Type = getEnv("HEALTHSCORE_BUS", c.EventBus.Type)
	c.EventBus.NATSUrl = getEnv("HEALTHSCORE_NATS_URL", c.EventBus.NATSUrl)
	c.EventBus.NATSToken = getEnv("HEALTHSCORE_NATS_TOKEN", c.EventBus.NATSToken)

	c.Engine.QuestionnairePath = getEnv("HEALTHSCORE_QUESTIONNAIRE", c.Engine.QuestionnairePath)
	c.Engine.AlertRulesPath = getEnv("HEALTHSCORE_ALERT_RULES", c.Engine.AlertRulesPath)
	c.Engine.WriteTimeout = getEnvAsDuration("HEALTHSCORE_WRITE_TIMEOUT", c.Engine.WriteTimeout)
	c.Engine.PendingMaxAge = getEnvAsDuration("HEALTHSCORE_PENDING_MAX_AGE", c.Engine.PendingMaxAge)
	c.Engine.AlertWorker = getEnvAsBool("HEALTHSCORE_ALERT_WORKER", c.Engine.AlertWorker)

	c.Auth.JWTSecret = getEnv("HEALTHSCORE_JWT_SECRET", c.Auth.JWTSecret)

	if getEnvAsBool("HEALTHSCORE_DEBUG", false) {
		c.Logging.Level = "debug"
	}
	c.Tracing.Enabled = getEnvAsBool("HEALTHSCORE_TRACING", c.Tracing.Enabled)
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Repository.Driver {
	case "sqlite", "postgres", "memory":
	case "pgx":
		if c.Repository.PostgresDSN == "" {
			return fmt.Errorf("pgx driver requires HEALTHSCORE_POSTGRES_DSN")
		}
	case "mongo":
		if c.Repository.MongoURI == "" {
			return fmt.Errorf("mongo driver requires HEALTHSCORE_MONGO_URI")
		}
	default:
		return fmt.Errorf("unsupported repository driver: %s", c.Repository.Driver)
	}
	if c.Engine.WriteTimeout <= 0 {
		return fmt.Errorf("engine write timeout must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
