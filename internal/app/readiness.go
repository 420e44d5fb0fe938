package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/emoticon-relay/internal/config"
)

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal interface for a Redis client needed for readiness.
type RedisClient interface{ Ping(ctx context.Context) RedisPingResult }

type redisAdapter struct{ c *redis.Client }

func (a redisAdapter) Ping(ctx context.Context) RedisPingResult { return a.c.Ping(ctx) }

// NewRedisClient opens the quota store connection described by cfg.RedisURL.
func NewRedisClient(cfg config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("op=app.NewRedisClient: %w", err)
	}
	return redis.NewClient(opts), nil
}

// WrapRedis adapts a go-redis client to RedisClient.
func WrapRedis(c *redis.Client) RedisClient {
	if c == nil {
		return nil
	}
	return redisAdapter{c: c}
}

// BuildReadinessCheck returns the quota store check, or nil when quota
// records live in process memory and there is nothing to check.
func BuildReadinessCheck(cfg config.Config, rdb RedisClient) func(ctx context.Context) error {
	if !cfg.RedisEnabled() {
		return nil
	}
	return func(ctx context.Context) error {
		if rdb == nil {
			return fmt.Errorf("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
