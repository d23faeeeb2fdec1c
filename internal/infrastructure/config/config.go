package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Session   SessionConfig
	Tab       TabConfig
	API       APIConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds debug HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// StoreConfig selects and configures the shared persistent store.
type StoreConfig struct {
	Backend       string `envconfig:"STORE_BACKEND" default:"memory"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"tabsessions:"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	// QuotaChars caps the in-memory store; 0 disables the cap.
	QuotaChars int `envconfig:"STORE_QUOTA_CHARS" default:"5242880"`
}

// SessionConfig holds session expiry settings.
type SessionConfig struct {
	Expiration    time.Duration `envconfig:"SESSION_EXPIRATION" default:"24h"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1h"`
}

// TabConfig describes the tab opened by the debug server.
type TabConfig struct {
	URL       string `envconfig:"TAB_URL" default:"http://localhost:8000/"`
	UserAgent string `envconfig:"TAB_USER_AGENT" default:"tabsessions-debug/1.0"`
}

// APIConfig holds platform API client configuration.
type APIConfig struct {
	BaseURL      string        `envconfig:"API_BASE_URL" default:"https://projet-suivi-1.onrender.com"`
	Timeout      time.Duration `envconfig:"API_TIMEOUT" default:"30s"`
	RateLimitRPS float64       `envconfig:"API_RATE_LIMIT_RPS" default:"0"`
	MaxRetries   int           `envconfig:"API_MAX_RETRIES" default:"3"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds debug API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis backend")
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Session.Expiration <= 0 {
		return errors.New("SESSION_EXPIRATION must be positive")
	}
	return nil
}

// Addr returns the debug server listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Store: StoreConfig{
			Backend:     BackendMemory,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "tabsessions:",
			QuotaChars:  5242880,
		},
		Session: SessionConfig{
			Expiration:    24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Tab: TabConfig{
			URL:       "http://localhost:8000/",
			UserAgent: "tabsessions-debug/1.0",
		},
		API: APIConfig{
			BaseURL:    "https://projet-suivi-1.onrender.com",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
