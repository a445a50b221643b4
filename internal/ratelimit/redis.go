// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/recipebox/recipebox/internal/auth"
)

// KeyPrefix namespaces limiter keys in Redis.
const KeyPrefix = "recipebox:ratelimit:"

// RedisLimiter counts attempts in Redis so every replica shares one budget.
type RedisLimiter struct {
	client redis.Cmdable
}

// NewRedisLimiter creates a RedisLimiter on client.
func NewRedisLimiter(client redis.Cmdable) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow increments key's counter. The window is fixed from the first
// attempt: SET NX creates the counter with its expiry and INCR keeps it, and
// both run in one MULTI so a counter never exists without a TTL.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, per time.Duration) (bool, error) {
	redisKey := KeyPrefix + key

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, redisKey, 0, per)
		incr = p.Incr(ctx, redisKey)
		return nil
	})
	if err != nil {
		return false, oops.Code("RATELIMIT_UNAVAILABLE").With("operation", "incr").Wrap(err)
	}
	return incr.Val() <= int64(limit), nil
}

// Reset deletes key's counter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, KeyPrefix+key).Err(); err != nil {
		return oops.Code("RATELIMIT_UNAVAILABLE").With("operation", "del").Wrap(err)
	}
	return nil
}

// NewRedisClient builds a client from a redis:// URL or a bare host:port and
// checks it answers.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

var _ auth.AttemptLimiter = (*RedisLimiter)(nil)
