package domain

import (
	"context"
	"time"
)

// Cache holds the latest evaluation per account in front of the repository.
// Supports two-phase caching: local LRU (community) + Redis (pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetLatest returns the cached latest evaluation for an account, or nil.
	GetLatest(ctx context.Context, accountID string) (*Evaluation, error)

	// SetLatest caches eval as the account's latest evaluation unless the
	// cache already holds a newer one (by evaluation date, then ID). The
	// comparison and the write are atomic.
	SetLatest(ctx context.Context, accountID string, eval *Evaluation, ttl time.Duration) error

	// DeleteLatest drops the cached latest evaluation for an account.
	DeleteLatest(ctx context.Context, accountID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory", "redis" or "none"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis

	// LatestTTL bounds how long a latest evaluation is served from cache.
	LatestTTL time.Duration

	// LatestLocalTTL bounds how long a replica's L1 serves a latest
	// evaluation written elsewhere. Two-phase only.
	LatestLocalTTL time.Duration
}
