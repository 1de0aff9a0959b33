package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"certexport/internal/export/models"
)

// RedisCache keeps CBOR-encoded documents in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewRedis creates a document cache storing CBOR entries in Redis.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get returns the cached document, or false when the key is absent.
func (c *RedisCache) Get(ctx context.Context, key string) (*models.Document, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached document: %w", err)
	}
	doc, err := decode(raw)
	if err != nil {
		// A corrupt entry is a miss; it will be overwritten.
		return nil, false, nil
	}
	return doc, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, doc *models.Document) error {
	raw, err := encode(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached document: %w", err)
	}
	return nil
}
