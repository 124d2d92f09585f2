// Package middleware provides the gin middleware in front of the control API.
//
//   - CORS: cross-origin access for a shell served from another origin
//   - RateLimit: per-IP token bucket with idle client cleanup
//
// Example Usage:
//
//	api := router.Group("/api")
//	api.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
