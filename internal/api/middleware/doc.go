// Package middleware provides the gin middleware stack for devipcd.
//
// Middleware stack includes:
//   - RateLimit: per-client token bucket, keyed by X-Devipc-Client
//   - GlobalRateLimit: one bucket for the whole daemon
//   - RequestID: ULID request IDs echoed in X-Request-ID
//   - Logger: zap request logging
//
// Example Usage:
//
//	router.Use(middleware.RequestID(id.Default()))
//	router.Use(middleware.Logger(log))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
