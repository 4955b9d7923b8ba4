package repository

import (
	"context"
	"time"

	"collaborative-board/internal/domain"
)

// PresenceRepository 是跨实例共享的在线状态存储，通常由 Redis 实现。
type PresenceRepository interface {
	// Put 写入或覆盖会话的在线记录，并刷新画板在线集合的过期时间。
	Put(ctx context.Context, boardID string, entry domain.PresenceEntry) error

	// Remove 删除会话的在线记录。记录不存在不是错误。
	Remove(ctx context.Context, boardID string, sessionID string) error

	// List 返回画板当前的在线用户，同一用户的多个会话只保留最近更新的一条。
	List(ctx context.Context, boardID string) ([]domain.PresenceEntry, error)
}

// HistoryCache 是最近操作窗口和序列号计数器，通常由 Redis 实现。
type HistoryCache interface {
	// Append 原子地分配下一个序列号、写入 action 并裁剪窗口，返回分配的序列号。
	// action.Seq 由实现填写。
	Append(ctx context.Context, action *domain.Action) (uint64, error)

	// Recent 返回窗口中最近的 limit 条操作，按 seq 降序。
	Recent(ctx context.Context, boardID string, limit int) ([]domain.Action, error)

	// HasSequence 判断画板的序列号计数器是否存在。
	HasSequence(ctx context.Context, boardID string) (bool, error)

	// SeedSequence 在计数器不存在时将其设置为 seq (SETNX)。
	SeedSequence(ctx context.Context, boardID string, seq uint64) error
}

// RateLimiter 是固定窗口限流器。
type RateLimiter interface {
	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 如果超限，false 如果未超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ActionArchive 保存被保留策略裁剪掉的历史操作。
type ActionArchive interface {
	// Archive 写入一批按 seq 升序排列的操作，返回对象的位置标识。
	Archive(ctx context.Context, boardID string, actions []domain.Action) (string, error)
}

// BoardMessage 是通过跨实例广播通道收到的一条消息。
type BoardMessage struct {
	BoardID string
	Payload []byte
	// Lost 为 true 时没有 Payload，表示该画板有消息因消费落后被丢弃，
	// 本实例上该画板的会话需要重新加入以获得回放。
	Lost bool
}

// Broker 在多个服务实例之间转发画板事件，通常由 Redis Pub/Sub 实现。
type Broker interface {
	Publish(ctx context.Context, boardID string, payload []byte) error
	Subscribe(ctx context.Context, boardID string) error
	Unsubscribe(ctx context.Context, boardID string) error
	// Messages 返回已订阅画板的消息，Close 之后通道会被关闭。
	Messages() <-chan BoardMessage
	Close() error
}
