package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisScopeCache struct {
	client *redis.Client
}

func NewRedisScopeCache(addr string, password string, db int) *RedisScopeCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisScopeCache{client: client}
}

func (c *RedisScopeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisScopeCache) Close() error {
	return c.client.Close()
}

func (c *RedisScopeCache) Get(ctx context.Context, ownerID string) ([]string, bool, error) {
	val, err := c.client.Get(ctx, scopeKey(ownerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (c *RedisScopeCache) Set(ctx context.Context, ownerID string, storeIDs []string, ttl time.Duration) error {
	if storeIDs == nil {
		storeIDs = []string{}
	}
	payload, err := json.Marshal(storeIDs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, scopeKey(ownerID), payload, ttl).Err()
}

func (c *RedisScopeCache) Invalidate(ctx context.Context, ownerID string) error {
	return c.client.Del(ctx, scopeKey(ownerID)).Err()
}
