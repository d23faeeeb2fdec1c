// Package middleware provides the gin middleware of the debug API.
//
// Middleware stack includes:
//   - CORS: front-end dev origins, exposing the tab and request id headers
//   - RateLimit: per-IP token bucket with idle client eviction
//   - RequestID: X-Request-ID assignment
//   - TabID: X-Tab-ID stamping so callers can tell which tab answered
//   - Logger: one zap line per completed request
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.TabID(env.ID()))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
