package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())

	// Store config
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 5242880, cfg.Store.QuotaChars)

	// Session config
	assert.Equal(t, 24*time.Hour, cfg.Session.Expiration)
	assert.Equal(t, time.Hour, cfg.Session.SweepInterval)

	// API config
	assert.Equal(t, "https://projet-suivi-1.onrender.com", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                   "9000",
		"HOST":                   "127.0.0.1",
		"STORE_BACKEND":          "redis",
		"REDIS_ADDR":             "redis:6379",
		"REDIS_DB":               "2",
		"REDIS_PREFIX":           "school:",
		"STORE_QUOTA_CHARS":      "0",
		"SESSION_EXPIRATION":     "2h",
		"SESSION_SWEEP_INTERVAL": "5m",
		"TAB_URL":                "http://debug.local/",
		"API_BASE_URL":           "http://api.local",
		"API_TIMEOUT":            "5s",
		"API_RATE_LIMIT_RPS":     "2.5",
		"LOG_LEVEL":              "debug",
		"LOG_DEV":                "true",
		"RATE_LIMIT_RPS":         "500",
		"RATE_LIMIT_BURST":       "1000",
		"RATE_LIMIT_ENABLED":     "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())

	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 2, cfg.Store.RedisDB)
	assert.Equal(t, "school:", cfg.Store.RedisPrefix)
	assert.Zero(t, cfg.Store.QuotaChars)

	assert.Equal(t, 2*time.Hour, cfg.Session.Expiration)
	assert.Equal(t, 5*time.Minute, cfg.Session.SweepInterval)
	assert.Equal(t, "http://debug.local/", cfg.Tab.URL)

	assert.Equal(t, "http://api.local", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.InDelta(t, 2.5, cfg.API.RateLimitRPS, 1e-9)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Defaults still apply
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "memory backend",
			mutate: func(c *Config) {},
		},
		{
			name:   "redis backend",
			mutate: func(c *Config) { c.Store.Backend = BackendRedis },
		},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.Store.Backend = BackendRedis
				c.Store.RedisAddr = ""
			},
			wantErr: "REDIS_ADDR",
		},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.Store.Backend = BackendPostgres },
			wantErr: "DATABASE_URL",
		},
		{
			name: "postgres with url",
			mutate: func(c *Config) {
				c.Store.Backend = BackendPostgres
				c.Store.DatabaseURL = "postgres://localhost/tabs"
			},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "etcd" },
			wantErr: "unknown STORE_BACKEND",
		},
		{
			name:    "zero expiration",
			mutate:  func(c *Config) { c.Session.Expiration = 0 },
			wantErr: "SESSION_EXPIRATION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadOrDefaultFallsBackOnInvalidConfig(t *testing.T) {
	t.Setenv("STORE_BACKEND", "etcd")
	t.Setenv("PORT", "9999")

	_, err := Load()
	require.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("SESSION_EXPIRATION", "tomorrow")

	_, err := Load()
	assert.Error(t, err)
}
