package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/domain"
)

// DefaultPresenceTTL 是画板在线集合的默认过期时间
const DefaultPresenceTTL = 24 * time.Hour

// RedisPresenceRepository 是 PresenceRepository 接口的 Redis 实现。
// 每个画板一个 Hash: field = 会话 ID, value = PresenceEntry JSON。
type RedisPresenceRepository struct {
	client *redis.Client
	keys   keyspace
	ttl    time.Duration
}

// NewRedisPresenceRepository 创建 RedisPresenceRepository 实例
func NewRedisPresenceRepository(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisPresenceRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisPresenceRepository")
	}
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &RedisPresenceRepository{client: client, keys: newKeyspace(keyPrefix), ttl: ttl}
}

// Put 写入在线记录并刷新整个 Hash 的过期时间
func (r *RedisPresenceRepository) Put(ctx context.Context, boardID string, entry domain.PresenceEntry) error {
	key := r.keys.presence(boardID)
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal presence for session %s: %w", entry.SessionID, err)
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, entry.SessionID, data)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to put presence on %s: %w", key, err)
	}
	return nil
}

// Remove 删除会话的在线记录
func (r *RedisPresenceRepository) Remove(ctx context.Context, boardID string, sessionID string) error {
	key := r.keys.presence(boardID)
	if err := r.client.HDel(ctx, key, sessionID).Err(); err != nil {
		return fmt.Errorf("redis: failed to remove presence %s from %s: %w", sessionID, key, err)
	}
	return nil
}

// List 返回在线用户，同一用户的多个会话合并为最近更新的那一条，按加入时间排序
func (r *RedisPresenceRepository) List(ctx context.Context, boardID string) ([]domain.PresenceEntry, error) {
	key := r.keys.presence(boardID)
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list presence from %s: %w", key, err)
	}
	byUser := make(map[uint]domain.PresenceEntry, len(raw))
	for field, value := range raw {
		var entry domain.PresenceEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			logrus.WithFields(logrus.Fields{"board_id": boardID, "session_id": field}).
				WithError(err).Warn("redis: skipping malformed presence entry")
			continue
		}
		if prev, ok := byUser[entry.UserID]; ok && prev.UpdatedAt.After(entry.UpdatedAt) {
			continue
		}
		byUser[entry.UserID] = entry
	}
	entries := make([]domain.PresenceEntry, 0, len(byUser))
	for _, e := range byUser {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})
	return entries, nil
}
