package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"bakerypos/backend/internal/domain"
)

// NewRedisClient dials redis and checks it answers before handing it out.
func NewRedisClient(ctx context.Context, addr string, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func getJSON[T any](ctx context.Context, client *redis.Client, key string) (*T, bool, error) {
	val, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var out T
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

func setJSON[T any](ctx context.Context, client *redis.Client, key string, value *T, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, payload, ttl).Err()
}

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(client *redis.Client) *RedisReportCache {
	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Get(ctx context.Context, key string) (*domain.DailyReport, bool, error) {
	return getJSON[domain.DailyReport](ctx, c.client, key)
}

func (c *RedisReportCache) Set(ctx context.Context, key string, value *domain.DailyReport, ttl time.Duration) error {
	return setJSON(ctx, c.client, key, value, ttl)
}

func (c *RedisReportCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

type RedisSuggestionCache struct {
	client *redis.Client
}

func NewRedisSuggestionCache(client *redis.Client) *RedisSuggestionCache {
	return &RedisSuggestionCache{client: client}
}

func (c *RedisSuggestionCache) Get(ctx context.Context, key string) (*domain.SuggestionResponse, bool, error) {
	return getJSON[domain.SuggestionResponse](ctx, c.client, key)
}

func (c *RedisSuggestionCache) Set(ctx context.Context, key string, value *domain.SuggestionResponse, ttl time.Duration) error {
	return setJSON(ctx, c.client, key, value, ttl)
}
