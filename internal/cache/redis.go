// Package cache replays recent verdicts from Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// DefaultTTL bounds how long a verdict is replayed.
const DefaultTTL = 24 * time.Hour

// Connect opens a Redis client and pings it. An empty address disables
// caching and returns a nil client.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return rdb, nil
}

// RedisCache stores verdict scores keyed by model version and transaction id.
type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisCache wraps rdb. A non-positive ttl uses DefaultTTL.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Key returns the cache key for a verdict.
func Key(modelVersion, transactionID string) string {
	return fmt.Sprintf("fraud:verdict:%s:%s", modelVersion, transactionID)
}

// Get returns the cached score. ok is false on a miss.
func (c *RedisCache) Get(ctx context.Context, transactionID, modelVersion string) (domain.Score, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(modelVersion, transactionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Score{}, false, nil
	}
	if err != nil {
		return domain.Score{}, false, fmt.Errorf("redis get: %w", err)
	}

	var s domain.Score
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Score{}, false, fmt.Errorf("decode cached verdict: %w", err)
	}
	if s.ModelVersion != modelVersion {
		return domain.Score{}, false, nil
	}
	return s, true, nil
}

// Set caches score for transactionID.
func (c *RedisCache) Set(ctx context.Context, transactionID string, score domain.Score) error {
	raw, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	if err := c.rdb.Set(ctx, Key(score.ModelVersion, transactionID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
