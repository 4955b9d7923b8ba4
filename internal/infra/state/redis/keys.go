// Package redisstate 提供基于 Redis 的实时状态存储: 在线状态、最近历史窗口、限流与跨实例广播。
package redisstate

import (
	"fmt"
	"strings"
)

// DefaultKeyPrefix 是未配置前缀时使用的默认值 ("cb:" = collaborative board)
const DefaultKeyPrefix = "cb:"

// keyspace 负责生成带前缀的 Redis key
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return keyspace{prefix: prefix}
}

// --- Key Generation Helpers ---
func (k keyspace) presence(boardID string) string {
	return fmt.Sprintf("%sboard:%s:presence", k.prefix, boardID)
}

func (k keyspace) sequence(boardID string) string {
	return fmt.Sprintf("%sboard:%s:seq", k.prefix, boardID)
}

func (k keyspace) history(boardID string) string {
	return fmt.Sprintf("%sboard:%s:actions", k.prefix, boardID)
}

func (k keyspace) rateLimit(key string) string {
	return fmt.Sprintf("%sratelimit:%s", k.prefix, key)
}

func (k keyspace) eventsChannel(boardID string) string {
	return fmt.Sprintf("%sboard:%s:events", k.prefix, boardID)
}

// boardFromChannel 从频道名中解析画板 ID
func (k keyspace) boardFromChannel(channel string) (string, bool) {
	const suffix = ":events"
	head := k.prefix + "board:"
	if !strings.HasPrefix(channel, head) || !strings.HasSuffix(channel, suffix) {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(channel, head), suffix), true
}
