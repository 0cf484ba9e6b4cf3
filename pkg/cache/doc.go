// Package cache provides a Redis-backed response cache for Canvas GET
// requests. Entries carry the full response envelope (status, headers,
// body) and expire after a fixed TTL set by the client configuration.
//
// The cache holds response data only. Dispatcher and rate-limit state
// stay process-local and are never shared through Redis.
package cache
