package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete spiritx configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Auth       AuthConfig       `json:"auth"`
	Assistant  AssistantConfig  `json:"assistant"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ReadTimeout    int      `json:"readTimeout"`  // seconds
	WriteTimeout   int      `json:"writeTimeout"` // seconds
	AllowedOrigins []string `json:"allowedOrigins"`
}

// AuthConfig holds token and login settings.
type AuthConfig struct {
	JWTSecret   string        `json:"-"`
	Issuer      string        `json:"issuer"`
	Audience    string        `json:"audience"`
	TokenTTL    time.Duration `json:"tokenTtl"`
	MaxAttempts int           `json:"maxAttempts"`
	LockWindow  time.Duration `json:"lockWindow"`
}

// AssistantConfig configures the LLM fallback used by the chatbot.
// An empty APIKey disables the remote call.
type AssistantConfig struct {
	APIKey   string        `json:"-"`
	Endpoint string        `json:"endpoint"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"timeout"`
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
	// TierCommunity runs on SQLite, an in-process cache and channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./spiritx.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Auth: AuthConfig{
			Issuer:      "SpiritX",
			Audience:    "SpiritXUsers",
			TokenTTL:    60 * time.Minute,
			MaxAttempts: 5,
			LockWindow:  5 * time.Minute,
		},
		Assistant: AssistantConfig{
			Endpoint: "https://generativelanguage.googleapis.com/v1beta/models",
			Model:    "gemini-2.0-flash",
			Timeout:  15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "spiritx",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "spiritx",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
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

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "SPIRITX_"

// LoadConfig picks the tier from SPIRITX_TIER and overlays the remaining
// SPIRITX_* variables on its defaults.
func LoadConfig(lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()
	if tier, ok := lookup(EnvPrefix + "TIER"); ok && Tier(strings.ToLower(tier)) == TierPro {
		cfg = ProConfig()
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides c with any SPIRITX_* variables that lookup reports.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("HOST", &c.Server.Host)
	if err := num("PORT", &c.Server.Port); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, origin)
			}
		}
	}

	str("DB_DRIVER", &c.Repository.Driver)
	str("SQLITE_PATH", &c.Repository.SQLitePath)
	str("DATABASE_URL", &c.Repository.PostgresURL)
	str("POSTGRES_HOST", &c.Repository.PostgresHost)
	if err := num("POSTGRES_PORT", &c.Repository.PostgresPort); err != nil {
		return err
	}
	str("POSTGRES_USER", &c.Repository.PostgresUser)
	str("POSTGRES_PASSWORD", &c.Repository.PostgresPassword)
	str("POSTGRES_DB", &c.Repository.PostgresDB)
	str("POSTGRES_SSLMODE", &c.Repository.PostgresSSLMode)

	str("REDIS_ADDR", &c.Cache.RedisAddr)
	str("REDIS_PASSWORD", &c.Cache.RedisPassword)
	str("NATS_URL", &c.EventBus.NATSUrl)
	str("NATS_TOKEN", &c.EventBus.NATSToken)

	str("JWT_SECRET", &c.Auth.JWTSecret)
	if err := dur("TOKEN_TTL", &c.Auth.TokenTTL); err != nil {
		return err
	}
	if err := num("LOGIN_MAX_ATTEMPTS", &c.Auth.MaxAttempts); err != nil {
		return err
	}
	if err := dur("LOGIN_LOCK_WINDOW", &c.Auth.LockWindow); err != nil {
		return err
	}

	str("GEMINI_API_KEY", &c.Assistant.APIKey)
	str("GEMINI_MODEL", &c.Assistant.Model)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	if v, ok := lookup(EnvPrefix + "TRACING"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sTRACING: %w", EnvPrefix, err)
		}
		c.Tracing.Enabled = enabled
	}
	return nil
}
