package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"piivault/pkg/domain"
	"piivault/pkg/platform/sentinel"
)

const exportKeyPrefix = "piivault:export:"

// RedisCache stores sealed exports with a Redis TTL so any replica can serve
// the download.
type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Put(ctx context.Context, id domain.ExportID, sealed string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("export ttl must be positive")
	}
	if err := c.client.Set(ctx, exportKeyPrefix+id.String(), sealed, ttl).Err(); err != nil {
		return fmt.Errorf("cache export %s: %w", id, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, id domain.ExportID) (string, error) {
	sealed, err := c.client.Get(ctx, exportKeyPrefix+id.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("export %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("load export %s: %w", id, err)
	}
	return sealed, nil
}
