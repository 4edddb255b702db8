// Package middleware provides HTTP middleware for the modgraph API.
//
// RateLimitMiddleware throttles POST, PUT, PATCH and DELETE requests per
// actor (the X-Actor header, read from the audit context) or per client
// address when no actor is set. Two limiters are available:
//
//   - RateLimiter: a process-local token bucket
//   - DistributedRateLimiter: a fixed window counter in Redis, shared by
//     every server instance
//
// Limiter errors fail open: the request is served and the error logged.
package middleware
