package redisstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/repository"
)

// RedisBroker 使用一个 Pub/Sub 连接在实例之间转发画板事件。
// 订阅随房间的创建和清空动态增减。
type RedisBroker struct {
	client *redis.Client
	keys   keyspace
	pubsub *redis.PubSub
	out    chan repository.BoardMessage

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

const (
	// DefaultBrokerBuffer 是转发通道的默认容量
	DefaultBrokerBuffer = 1024
	// 丢弃消息后重试投递 Lost 通知的间隔
	lostRetryInterval = 50 * time.Millisecond
)

// NewRedisBroker 创建 RedisBroker 并启动转发 goroutine
func NewRedisBroker(client *redis.Client, keyPrefix string) *RedisBroker {
	return NewRedisBrokerWithBuffer(client, keyPrefix, DefaultBrokerBuffer)
}

// NewRedisBrokerWithBuffer 与 NewRedisBroker 相同，但指定转发通道的容量
func NewRedisBrokerWithBuffer(client *redis.Client, keyPrefix string, buffer int) *RedisBroker {
	if client == nil {
		panic("redis client cannot be nil for RedisBroker")
	}
	if buffer <= 0 {
		buffer = DefaultBrokerBuffer
	}
	b := &RedisBroker{
		client: client,
		keys:   newKeyspace(keyPrefix),
		pubsub: client.Subscribe(context.Background()),
		out:    make(chan repository.BoardMessage, buffer),
		done:   make(chan struct{}),
	}
	go b.forward()
	return b
}

// Publish 将消息发布到画板频道
func (b *RedisBroker) Publish(ctx context.Context, boardID string, payload []byte) error {
	channel := b.keys.eventsChannel(boardID)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"board_id":     boardID,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe 开始接收画板频道的消息
func (b *RedisBroker) Subscribe(ctx context.Context, boardID string) error {
	channel := b.keys.eventsChannel(boardID)
	if err := b.pubsub.Subscribe(ctx, channel); err != nil {
		return fmt.Errorf("redis: failed to subscribe to %s: %w", channel, err)
	}
	return nil
}

// Unsubscribe 停止接收画板频道的消息
func (b *RedisBroker) Unsubscribe(ctx context.Context, boardID string) error {
	channel := b.keys.eventsChannel(boardID)
	if err := b.pubsub.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("redis: failed to unsubscribe from %s: %w", channel, err)
	}
	return nil
}

// Messages 返回收到的画板消息
func (b *RedisBroker) Messages() <-chan repository.BoardMessage {
	return b.out
}

// Close 关闭 Pub/Sub 连接，Messages 通道随后关闭
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	err := b.pubsub.Close()
	<-b.done
	return err
}

// forward 把 Pub/Sub 消息转到 out。消费者落后时丢弃消息并记下画板，
// 之后尽快为每个这样的画板投递一条 Lost 通知。在通知送达之前，
// 该画板的后续消息也一并丢弃，通知总是先于恢复后的消息到达。
func (b *RedisBroker) forward() {
	defer close(b.done)
	defer close(b.out)

	ticker := time.NewTicker(lostRetryInterval)
	defer ticker.Stop()
	lost := make(map[string]bool)
	ch := b.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			boardID, ok := b.keys.boardFromChannel(msg.Channel)
			if !ok {
				logrus.WithField("channel", msg.Channel).Warn("redis broker: message on unexpected channel")
				continue
			}
			b.flushLost(lost)
			if lost[boardID] {
				continue
			}
			select {
			case b.out <- repository.BoardMessage{BoardID: boardID, Payload: []byte(msg.Payload)}:
			default:
				lost[boardID] = true
				logrus.WithField("board_id", boardID).Warn("redis broker: consumer is behind, board marked as lost")
			}
		case <-ticker.C:
			b.flushLost(lost)
		}
	}
}

// flushLost 尽量投递 Lost 通知，送达的画板从 lost 中移除
func (b *RedisBroker) flushLost(lost map[string]bool) {
	for boardID := range lost {
		select {
		case b.out <- repository.BoardMessage{BoardID: boardID, Lost: true}:
			delete(lost, boardID)
		default:
			return
		}
	}
}
