/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache mirrors call snapshots into Redis so read surfaces can be
// served without touching the registry. The cache is strictly optional:
// every miss or Redis failure falls through to the facade.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skuld/internal/request"
)

// DefaultRequestTTL bounds staleness for cached call snapshots.
const DefaultRequestTTL = 10 * time.Minute

// KeyRequest is the Redis key prefix for call snapshots.
const KeyRequest = "skuld:cache:request:" // + request_id

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RequestTTL time.Duration

	// DisableOnError trips the circuit breaker on the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		RequestTTL:     DefaultRequestTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed snapshot caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a cache instance. An unreachable Redis is not an error;
// the cache starts disabled and the engine runs without it.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = DefaultRequestTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// SetRequest mirrors a call snapshot into the cache. Failures are
// absorbed; the registry remains the source of truth.
func (c *Cache) SetRequest(ctx context.Context, snap request.Snapshot) {
	if !c.IsAvailable() {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Debug().Err(err).Stringer("id", snap.ID).Msg("failed to marshal snapshot")
		return
	}

	if err := c.client.Set(ctx, KeyRequest+snap.ID.String(), data, c.config.RequestTTL).Err(); err != nil {
		c.handleError(err, "set")
	}
}

// GetRequest returns a cached snapshot if one is present and decodable.
func (c *Cache) GetRequest(ctx context.Context, id uuid.UUID) (request.Snapshot, bool) {
	var snap request.Snapshot
	if !c.IsAvailable() {
		return snap, false
	}

	data, err := c.client.Get(ctx, KeyRequest+id.String()).Bytes()
	if err == redis.Nil {
		return snap, false
	}
	if err != nil {
		c.handleError(err, "get")
		return snap, false
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Debug().Err(err).Stringer("id", id).Msg("failed to unmarshal cached snapshot")
		return snap, false
	}
	return snap, true
}

// InvalidateRequest drops a cached snapshot.
func (c *Cache) InvalidateRequest(ctx context.Context, id uuid.UUID) {
	if !c.IsAvailable() {
		return
	}

	if err := c.client.Del(ctx, KeyRequest+id.String()).Err(); err != nil {
		c.handleError(err, "delete")
	}
}
