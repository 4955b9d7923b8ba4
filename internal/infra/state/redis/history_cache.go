package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/domain"
)

const (
	DefaultHistoryWindow = 200
	DefaultHistoryTTL    = 7 * 24 * time.Hour
)

// appendScript 原子地分配序列号并写入窗口。
// KEYS[1] = 序列号计数器, KEYS[2] = 窗口列表
// ARGV[1] = action JSON, ARGV[2] = 窗口大小, ARGV[3] = 窗口 TTL (秒)
// 列表元素格式为 "<seq>|<json>"。
var appendScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
redis.call('RPUSH', KEYS[2], seq .. '|' .. ARGV[1])
redis.call('LTRIM', KEYS[2], -tonumber(ARGV[2]), -1)
redis.call('EXPIRE', KEYS[2], tonumber(ARGV[3]))
return seq
`)

// RedisHistoryCache 是 HistoryCache 接口的 Redis 实现
type RedisHistoryCache struct {
	client *redis.Client
	keys   keyspace
	window int
	ttl    time.Duration
}

// NewRedisHistoryCache 创建 RedisHistoryCache 实例
func NewRedisHistoryCache(client *redis.Client, keyPrefix string, window int, ttl time.Duration) *RedisHistoryCache {
	if client == nil {
		panic("redis client cannot be nil for RedisHistoryCache")
	}
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &RedisHistoryCache{client: client, keys: newKeyspace(keyPrefix), window: window, ttl: ttl}
}

// Append 原子地分配序列号并写入最近窗口
func (c *RedisHistoryCache) Append(ctx context.Context, action *domain.Action) (uint64, error) {
	action.Seq = 0
	body, err := json.Marshal(action)
	if err != nil {
		return 0, fmt.Errorf("redis: failed to marshal action for board %s: %w", action.BoardID, err)
	}
	keys := []string{c.keys.sequence(action.BoardID), c.keys.history(action.BoardID)}
	seq, err := appendScript.Run(ctx, c.client, keys, string(body), c.window, int(c.ttl.Seconds())).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: append script failed for board %s: %w", action.BoardID, err)
	}
	action.Seq = uint64(seq)
	return action.Seq, nil
}

// Recent 返回窗口中最近的 limit 条操作，按 seq 降序
func (c *RedisHistoryCache) Recent(ctx context.Context, boardID string, limit int) ([]domain.Action, error) {
	if limit <= 0 {
		return nil, nil
	}
	key := c.keys.history(boardID)
	items, err := c.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get recent actions for board %s from %s: %w", boardID, key, err)
	}
	actions := make([]domain.Action, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		action, err := decodeHistoryItem(items[i])
		if err != nil {
			logrus.WithField("board_id", boardID).WithError(err).Warn("redis: skipping malformed history entry")
			continue
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// HasSequence 判断序列号计数器是否存在
func (c *RedisHistoryCache) HasSequence(ctx context.Context, boardID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.keys.sequence(boardID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to check sequence for board %s: %w", boardID, err)
	}
	return n == 1, nil
}

// SeedSequence 仅在计数器不存在时设置初始值
func (c *RedisHistoryCache) SeedSequence(ctx context.Context, boardID string, seq uint64) error {
	if err := c.client.SetNX(ctx, c.keys.sequence(boardID), seq, 0).Err(); err != nil {
		return fmt.Errorf("redis: failed to seed sequence for board %s: %w", boardID, err)
	}
	return nil
}

func decodeHistoryItem(item string) (domain.Action, error) {
	var action domain.Action
	sep := strings.IndexByte(item, '|')
	if sep <= 0 {
		return action, errors.New("missing sequence prefix")
	}
	seq, err := strconv.ParseUint(item[:sep], 10, 64)
	if err != nil {
		return action, fmt.Errorf("invalid sequence prefix: %w", err)
	}
	if err := json.Unmarshal([]byte(item[sep+1:]), &action); err != nil {
		return action, err
	}
	action.Seq = seq
	return action, nil
}
