package redisstate_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-board/internal/domain"
	redisstate "collaborative-board/internal/infra/state/redis"
	"collaborative-board/internal/repository"
)

// newTestRedis 启动 miniredis 并返回连接它的客户端
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisPresenceRepository_PutListRemove(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := redisstate.NewRedisPresenceRepository(client, "t:", time.Hour)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.Put(ctx, "b1", domain.PresenceEntry{UserID: 1, SessionID: "s1", Username: "alice", JoinedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.Put(ctx, "b1", domain.PresenceEntry{UserID: 2, SessionID: "s2", Username: "bob", JoinedAt: now.Add(time.Second), UpdatedAt: now}))
	// 同一用户的第二个会话，更新时间更晚
	require.NoError(t, repo.Put(ctx, "b1", domain.PresenceEntry{UserID: 1, SessionID: "s3", Username: "alice", Cursor: &domain.Cursor{X: 5, Y: 5}, JoinedAt: now, UpdatedAt: now.Add(time.Minute)}))

	assert.Equal(t, time.Hour, mr.TTL("t:board:b1:presence"), "在线集合应设置过期时间")

	entries, err := repo.List(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, entries, 2, "同一用户的多个会话应合并")
	assert.Equal(t, "s3", entries[0].SessionID)
	assert.Equal(t, &domain.Cursor{X: 5, Y: 5}, entries[0].Cursor)
	assert.Equal(t, uint(2), entries[1].UserID)

	require.NoError(t, repo.Remove(ctx, "b1", "s2"))
	require.NoError(t, repo.Remove(ctx, "b1", "missing"), "删除不存在的记录不是错误")
	entries, err = repo.List(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint(1), entries[0].UserID)
}

func TestRedisPresenceRepository_UpstreamDown(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := redisstate.NewRedisPresenceRepository(client, "t:", time.Hour)
	mr.Close()

	err := repo.Put(context.Background(), "b1", domain.PresenceEntry{UserID: 1, SessionID: "s1"})
	assert.Error(t, err)
}

func TestRedisHistoryCache_AppendAssignsIncreasingSeq(t *testing.T) {
	_, client := newTestRedis(t)
	cache := redisstate.NewRedisHistoryCache(client, "t:", 3, time.Hour)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		a := &domain.Action{BoardID: "b1", Kind: domain.ActionDraw, Data: `{"points":[0,0]}`, UserID: 1}
		seq, err := cache.Append(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), seq)
		assert.Equal(t, uint64(i), a.Seq)
	}
	other := &domain.Action{BoardID: "b2", Kind: domain.ActionDraw, Data: `{"points":[0,0]}`}
	seq, err := cache.Append(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq, "不同画板的序列号互不影响")

	recent, err := cache.Recent(ctx, "b1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 3, "窗口大小应被裁剪为 3")
	assert.Equal(t, []uint64{5, 4, 3}, []uint64{recent[0].Seq, recent[1].Seq, recent[2].Seq})
	assert.Equal(t, `{"points":[0,0]}`, recent[0].Data)

	recent, err = cache.Recent(ctx, "b1", 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRedisHistoryCache_SeedSequence(t *testing.T) {
	_, client := newTestRedis(t)
	cache := redisstate.NewRedisHistoryCache(client, "t:", 10, time.Hour)
	ctx := context.Background()

	ok, err := cache.HasSequence(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.SeedSequence(ctx, "b1", 41))
	require.NoError(t, cache.SeedSequence(ctx, "b1", 7), "SETNX 不应覆盖已有计数器")

	seq, err := cache.Append(ctx, &domain.Action{BoardID: "b1", Kind: domain.ActionText, Data: `{"text":"x"}`})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)
}

func TestRedisRateLimiter(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := redisstate.NewRedisRateLimiter(client, "t:")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exceeded, err := limiter.CheckRateLimit(ctx, "ip", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, exceeded)
	}
	exceeded, err := limiter.CheckRateLimit(ctx, "ip", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, exceeded)

	mr.FastForward(2 * time.Minute)
	exceeded, err = limiter.CheckRateLimit(ctx, "ip", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, exceeded, "窗口过期后计数应重置")
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	_, client := newTestRedis(t)
	broker := redisstate.NewRedisBroker(client, "t:")
	defer broker.Close()
	ctx := context.Background()

	require.NoError(t, broker.Subscribe(ctx, "b1"))

	var got repository.BoardMessage
	require.Eventually(t, func() bool {
		require.NoError(t, broker.Publish(ctx, "b1", []byte(`{"event":"x"}`)))
		select {
		case got = <-broker.Messages():
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "b1", got.BoardID)
	assert.Equal(t, `{"event":"x"}`, string(got.Payload))

	require.NoError(t, broker.Close())
	_, open := <-drain(broker.Messages())
	assert.False(t, open, "Close 之后消息通道应关闭")
}

func TestRedisBroker_LaggingConsumerGetsLostNotice(t *testing.T) {
	mr, client := newTestRedis(t)
	broker := redisstate.NewRedisBrokerWithBuffer(client, "t:", 1)
	defer broker.Close()
	ctx := context.Background()

	require.NoError(t, broker.Subscribe(ctx, "b1"))
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("t:board:b1:events")["t:board:b1:events"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	const published = 20
	for i := 0; i < published; i++ {
		require.NoError(t, broker.Publish(ctx, "b1", []byte(fmt.Sprintf(`{"n":%d}`, i))))
	}
	// 不消费，让转发 goroutine 把通道写满
	time.Sleep(200 * time.Millisecond)

	var payloads, lost int
	for done := false; !done; {
		select {
		case m := <-broker.Messages():
			assert.Equal(t, "b1", m.BoardID)
			if m.Lost {
				assert.Empty(t, m.Payload)
				lost++
				continue
			}
			assert.Zero(t, lost, "no payload may follow the lost notice for the same gap")
			payloads++
		case <-time.After(300 * time.Millisecond):
			done = true
		}
	}
	assert.Equal(t, 1, lost)
	assert.Less(t, payloads, published)

	// 通知送达之后恢复正常转发
	require.NoError(t, broker.Publish(ctx, "b1", []byte(`{"n":"after"}`)))
	select {
	case m := <-broker.Messages():
		assert.False(t, m.Lost)
		assert.Equal(t, `{"n":"after"}`, string(m.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("broker did not resume after the lost notice")
	}
}

// drain 丢弃残留消息，返回一个在原通道关闭后关闭的通道
func drain(ch <-chan repository.BoardMessage) <-chan repository.BoardMessage {
	out := make(chan repository.BoardMessage)
	go func() {
		for range ch {
		}
		close(out)
	}()
	return out
}
