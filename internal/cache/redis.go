package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ingest:"

// RedisCache keeps markers as plain keys in a Redis database.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to addr and verifies the connection with a ping.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w: %w", addr, models.ErrCacheUnavailable, err)
	}
	return &RedisCache{client: client}, nil
}

func redisKey(source models.SourceType, file string) string {
	return redisKeyPrefix + string(source) + ":" + file
}

func redisPattern(source models.SourceType) string {
	if source == "" {
		return redisKeyPrefix + "*"
	}
	return redisKeyPrefix + string(source) + ":*"
}

func (c *RedisCache) Has(ctx context.Context, source models.SourceType, file string) (bool, error) {
	n, err := c.client.Exists(ctx, redisKey(source, file)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup %s/%s: %w: %w", source, file, models.ErrCacheUnavailable, err)
	}
	return n > 0, nil
}

func (c *RedisCache) Mark(ctx context.Context, source models.SourceType, file string) error {
	err := c.client.Set(ctx, redisKey(source, file), time.Now().Unix(), 0).Err()
	if err != nil {
		return fmt.Errorf("mark %s/%s: %w: %w", source, file, models.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context, source models.SourceType) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, redisPattern(source), 500).Iterator()
	for iter.Next(ctx) {
		n, err := c.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, fmt.Errorf("clear %q: %w: %w", source, models.ErrCacheUnavailable, err)
		}
		removed += int(n)
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan %q: %w: %w", source, models.ErrCacheUnavailable, err)
	}
	return removed, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
