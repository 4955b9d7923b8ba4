package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisRateLimiter 是基于 INCR + EXPIRE 的固定窗口限流器
type RedisRateLimiter struct {
	client *redis.Client
	keys   keyspace
}

// NewRedisRateLimiter 创建 RedisRateLimiter 实例
func NewRedisRateLimiter(client *redis.Client, keyPrefix string) *RedisRateLimiter {
	if client == nil {
		panic("redis client cannot be nil for RedisRateLimiter")
	}
	return &RedisRateLimiter{client: client, keys: newKeyspace(keyPrefix)}
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.keys.rateLimit(key)
	// 使用 Pipeline 减少网络往返
	pipe := r.client.TxPipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	ttlCmd := pipe.PTTL(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", fullKey, err)
	}
	count := incrCmd.Val()
	// 只在窗口开始时设置过期时间，否则持续请求会让计数器永不过期
	if count == 1 || ttlCmd.Val() < 0 {
		if err := r.client.PExpire(ctx, fullKey, window).Err(); err != nil {
			return false, fmt.Errorf("redis: failed to set rate limit window on key %s: %w", fullKey, err)
		}
	}
	return count > int64(limit), nil
}
