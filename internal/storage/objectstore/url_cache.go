package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const presignedGetKeyPrefix = "s3:presigned:get:"

// URLCache keeps presigned GET URLs in Redis for a little less than their
// lifetime.
type URLCache struct {
	client *redis.Client
	margin time.Duration
}

func NewURLCache(client *redis.Client) *URLCache {
	return &URLCache{client: client, margin: time.Minute}
}

func (c *URLCache) Get(ctx context.Context, key string) (string, bool, error) {
	url, err := c.client.Get(ctx, presignedGetKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cached url: %w", err)
	}
	return url, true, nil
}

func (c *URLCache) Put(ctx context.Context, key, url string, lifetime time.Duration) error {
	ttl := lifetime - c.margin
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, presignedGetKeyPrefix+key, url, ttl).Err(); err != nil {
		return fmt.Errorf("cache url: %w", err)
	}
	return nil
}
