// Package redis stores buffered completion results in Redis keyed by the
// canonical request.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

const (
	fieldData     = "data"
	fieldCachedAt = "cached_at"
)

// ResponseCache implements domain.ResponseCache on Redis hashes.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient opens a Redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// NewResponseCache creates a new Redis response cache.
func NewResponseCache(client *redis.Client, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached result for req or domain.ErrCacheMiss.
func (c *ResponseCache) Get(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	key := domain.CacheKey(req)

	data, err := c.client.HGet(ctx, key, fieldData).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var result domain.CompletionResult
	if err = json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}

	observability.FromContext(ctx).Debug("cache entry found", observability.String("key", key))

	return &result, nil
}

// Set stores result for req with the configured TTL.
func (c *ResponseCache) Set(ctx context.Context, req *domain.CompletionRequest, result *domain.CompletionResult) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}

	key := domain.CacheKey(req)

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key,
		fieldData, data,
		fieldCachedAt, strconv.FormatInt(time.Now().Unix(), 10),
	)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	observability.FromContext(ctx).Debug("cache entry stored",
		observability.String("key", key),
		observability.Duration("ttl", c.ttl),
	)

	return nil
}
