// Package cache provides a Redis-backed memo for prediction results.
// Cascade inference is deterministic for identical inputs, so cached
// results never diverge from a fresh computation; the TTL exists only to
// bound memory and to pick up redeployed model parameters.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mirai-cascade-server/internal/domain"
)

// PredictionCache wraps a Redis client with prediction result caching.
type PredictionCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
	log        *logrus.Logger
}

// cachedPrediction is the stored envelope, carrying expiry metadata so
// entries outlived by a shorter server-side TTL still expire consistently.
type cachedPrediction struct {
	Result    *domain.PredictionResult `json:"result"`
	CachedAt  time.Time                `json:"cached_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// NewPredictionCache creates a new prediction cache client.
func NewPredictionCache(cfg domain.CacheConfig, log *logrus.Logger) (*PredictionCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &PredictionCache{
		redis:      client,
		defaultTTL: cfg.DefaultTTL,
		log:        log,
	}, nil
}

// Get retrieves a cached result for the given patient record.
func (c *PredictionCache) Get(ctx context.Context, input *domain.PatientRecord) (*domain.PredictionResult, bool, error) {
	key, err := recordKey(input)
	if err != nil {
		return nil, false, err
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get prediction cache: %w", err)
	}

	var cached cachedPrediction
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Result, true, nil
}

// Set caches a prediction result under the input record's key.
func (c *PredictionCache) Set(ctx context.Context, input *domain.PatientRecord, result *domain.PredictionResult) error {
	key, err := recordKey(input)
	if err != nil {
		return err
	}

	cached := cachedPrediction{
		Result:    result,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.defaultTTL),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached prediction: %w", err)
	}

	return c.redis.Set(ctx, key, data, c.defaultTTL).Err()
}

// Invalidate removes the cached result for one patient record.
func (c *PredictionCache) Invalidate(ctx context.Context, input *domain.PatientRecord) error {
	key, err := recordKey(input)
	if err != nil {
		return err
	}
	return c.redis.Del(ctx, key).Err()
}

// Ping checks if the Redis connection is alive.
func (c *PredictionCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *PredictionCache) Close() error {
	return c.redis.Close()
}

// recordKey hashes the canonical JSON form of the input record. Struct
// field order fixes the JSON key order, so identical records always hash
// to the same key.
func recordKey(input *domain.PatientRecord) (string, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to build cache key: %w", err)
	}
	hash := sha256.Sum256(payload)
	return fmt.Sprintf("prediction:record:%x", hash), nil
}
