package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "kitpack:session:"

// RedisSessionStore backs the session cache with redis. Every failure
// degrades to a cache miss; the store never surfaces errors to callers.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore connects to redis and verifies the connection.
func NewRedisSessionStore(addr, password string, db int) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisSessionStore{client: client}, nil
}

func (c *RedisSessionStore) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("redis session get failed", slog.String("key", key), slog.Any("err", err))
		}
		return nil, false
	}
	return b, true
}

func (c *RedisSessionStore) Put(ctx context.Context, key string, snapshot []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, redisKeyPrefix+key, snapshot, ttl).Err(); err != nil {
		slog.Warn("redis session put failed", slog.String("key", key), slog.Any("err", err))
	}
}

func (c *RedisSessionStore) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		slog.Warn("redis session delete failed", slog.String("key", key), slog.Any("err", err))
	}
}

func (c *RedisSessionStore) Close() error {
	return c.client.Close()
}
