// Package config provides 12-factor configuration for the tab session debug server.
//
// Configuration is loaded from environment variables with defaults.
//
// Configuration Sections:
//   - Server: debug HTTP server settings (port, host)
//   - Store: shared store backend (memory, redis, postgres)
//   - Session: expiry window and sweep cadence
//   - Tab: URL and user agent reported by the server's own tab
//   - API: school platform client settings
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting of the debug API
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Debug server on %s\n", cfg.Addr())
//
// Environment Variables:
//   - PORT, HOST
//   - STORE_BACKEND, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_PREFIX, DATABASE_URL, STORE_QUOTA_CHARS
//   - SESSION_EXPIRATION, SESSION_SWEEP_INTERVAL
//   - TAB_URL, TAB_USER_AGENT
//   - API_BASE_URL, API_TIMEOUT, API_RATE_LIMIT_RPS, API_MAX_RETRIES
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
