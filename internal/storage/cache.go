// Package storage holds the optional persistence around inference: a Redis
// prediction cache and a PostgreSQL audit log.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Brownie44l1/formtagger-api/internal/model"
)

const cacheKeyPrefix = "formtagger:predictions:"

// Digest identifies an upload by content.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RedisCache stores prediction lists keyed by image digest. The engine is
// deterministic for a given model, so a hit is interchangeable with a run.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func cacheKey(digest string) string {
	return cacheKeyPrefix + digest
}

// Get returns the cached predictions for digest and whether there was a hit.
func (c *RedisCache) Get(ctx context.Context, digest string) ([]model.Prediction, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}

	predictions, err := decodePredictions(data)
	if err != nil {
		return nil, false, err
	}
	return predictions, true, nil
}

func (c *RedisCache) Set(ctx context.Context, digest string, predictions []model.Prediction) error {
	data, err := json.Marshal(predictions)
	if err != nil {
		return fmt.Errorf("failed to encode predictions: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(digest), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func decodePredictions(data []byte) ([]model.Prediction, error) {
	predictions := []model.Prediction{}
	if err := json.Unmarshal(data, &predictions); err != nil {
		return nil, fmt.Errorf("failed to decode cached predictions: %w", err)
	}
	if predictions == nil {
		predictions = []model.Prediction{}
	}
	return predictions, nil
}
