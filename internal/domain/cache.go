package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// All methods require tenantID for strict multi-tenancy isolation.
// Implementations must never fail an evaluation: callers treat any error
// as a miss, and absence of the cache is a valid, supported mode.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// DeletePrefix removes every key under the tenant with the prefix.
	// Used for whole-family invalidation on writes.
	DeletePrefix(ctx context.Context, tenantID string, prefix string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings: check local first, then Redis
	EnableTwoPhase bool
}
