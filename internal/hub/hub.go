// Package hub 实现实时协作引擎: 会话生命周期、房间成员管理和事件路由。
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/dto"
	"collaborative-board/internal/metrics"
	"collaborative-board/internal/repository"
	"collaborative-board/internal/service"
)

const (
	// presence 删除的重试次数，断线后在线记录必须在有限时间内消失
	presenceRemoveAttempts = 3
	cleanupTimeout         = 5 * time.Second
	publishTimeout         = 2 * time.Second
)

// AccessChecker 判断用户能否访问画板，由 service.AccessGuard 实现
type AccessChecker interface {
	Authorize(ctx context.Context, userID uint, boardID string) (*domain.Board, error)
	CanAccess(ctx context.Context, userID uint, boardID string) (bool, error)
}

// HistoryLog 是画板的有序操作日志，由 service.HistoryService 实现
type HistoryLog interface {
	Append(ctx context.Context, action *domain.Action) (uint64, error)
	Recent(ctx context.Context, boardID string, limit int) ([]domain.Action, error)
	ReplayLimit() int
}

// AIResponder 处理 ai-request，由 service.AIService 实现
type AIResponder interface {
	Process(req dto.AIRequest) dto.AIResponse
}

// Options 配置 Hub
type Options struct {
	// InstanceID 标识本实例，用于忽略自己发布到 Broker 的消息
	InstanceID string
	PongWait   time.Duration
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Deps 是 Hub 的依赖。Broker、AI 与 Metrics 可以为 nil。
type Deps struct {
	Access   AccessChecker
	History  HistoryLog
	Presence repository.PresenceRepository
	Broker   repository.Broker
	AI       AIResponder
	Metrics  *metrics.Metrics
}

// relayMessage 是通过 Broker 在实例间转发的消息
type relayMessage struct {
	Origin  string          `json:"origin"`
	Exclude string          `json:"exclude,omitempty"` // 需要排除的会话 ID
	Message json.RawMessage `json:"message"`
}

// Hub 维护本实例的会话与房间，并协调 Presence Store 与历史日志。
type Hub struct {
	access   AccessChecker
	history  HistoryLog
	presence repository.PresenceRepository
	broker   repository.Broker
	metrics  *metrics.Metrics
	router   *Router
	opts     Options

	// rooms 中的切片只会被整体替换，广播时可以不加锁地遍历快照
	mu       sync.RWMutex
	rooms    map[string][]*Session
	sessions map[string]*Session
	closed   bool

	subMu      sync.Mutex
	subscribed map[string]bool
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(deps Deps, opts Options) *Hub {
	if deps.Access == nil {
		panic("AccessChecker cannot be nil for Hub")
	}
	if deps.History == nil {
		panic("HistoryLog cannot be nil for Hub")
	}
	if deps.Presence == nil {
		panic("PresenceRepository cannot be nil for Hub")
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	h := &Hub{
		access:     deps.Access,
		history:    deps.History,
		presence:   deps.Presence,
		broker:     deps.Broker,
		metrics:    deps.Metrics,
		opts:       opts,
		rooms:      make(map[string][]*Session),
		sessions:   make(map[string]*Session),
		subscribed: make(map[string]bool),
	}
	h.router = NewRouter(h, deps.AI)
	return h
}

// InstanceID 返回本实例的标识
func (h *Hub) InstanceID() string { return h.opts.InstanceID }

// NewSession 为已认证的连接创建会话并登记。调用方随后调用 Session.Run。
func (h *Hub) NewSession(conn *websocket.Conn, user domain.User) (*Session, error) {
	s := newSession(h, conn, user)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.cancel()
		return nil, errors.New("hub is shutting down")
	}
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.metrics.SessionOpened()
	s.logger().Info("Session opened")
	return s, nil
}

// members 返回房间成员的快照，调用方不得修改返回的切片
func (h *Hub) members(boardID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[boardID]
}

// RoomSize 返回本实例上某画板的会话数量
func (h *Hub) RoomSize(boardID string) int {
	return len(h.members(boardID))
}

func (h *Hub) addMember(boardID string, s *Session) {
	h.mu.Lock()
	old := h.rooms[boardID]
	for _, m := range old {
		if m == s {
			h.mu.Unlock()
			return
		}
	}
	next := make([]*Session, len(old), len(old)+1)
	copy(next, old)
	h.rooms[boardID] = append(next, s)
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.SetActiveRooms(rooms)
	h.syncSubscription(boardID)
}

func (h *Hub) removeMember(boardID string, s *Session) {
	h.mu.Lock()
	old := h.rooms[boardID]
	next := make([]*Session, 0, len(old))
	for _, m := range old {
		if m != s {
			next = append(next, m)
		}
	}
	if len(next) == 0 {
		delete(h.rooms, boardID)
	} else {
		h.rooms[boardID] = next
	}
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.SetActiveRooms(rooms)
	h.syncSubscription(boardID)
}

// syncSubscription 让 Broker 订阅与本实例是否有该画板的成员保持一致
func (h *Hub) syncSubscription(boardID string) {
	if h.broker == nil {
		return
	}
	h.subMu.Lock()
	defer h.subMu.Unlock()

	want := h.RoomSize(boardID) > 0
	have := h.subscribed[boardID]
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	switch {
	case want && !have:
		if err := h.broker.Subscribe(ctx, boardID); err != nil {
			logrus.WithField("board_id", boardID).WithError(err).Error("Hub: failed to subscribe board channel")
			return
		}
		h.subscribed[boardID] = true
	case !want && have:
		if err := h.broker.Unsubscribe(ctx, boardID); err != nil {
			logrus.WithField("board_id", boardID).WithError(err).Warn("Hub: failed to unsubscribe board channel")
		}
		delete(h.subscribed, boardID)
	}
}

// Join 将会话加入画板。
// 新画板的在线记录、在线列表和历史全部就绪后才离开旧画板，
// 任何一步失败时会话保持原状，可以直接重试。重复加入同一画板只重新发送快照。
// 返回的快照已经投递给会话。
func (h *Hub) Join(ctx context.Context, s *Session, boardID string) (*dto.BoardJoined, error) {
	start := time.Now()
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"session_id": s.id, "user_id": s.user.ID, "board_id": boardID})

	board, err := h.access.Authorize(ctx, s.user.ID, boardID)
	if err != nil {
		logCtx.WithError(err).Info("Join rejected")
		return nil, err
	}

	current := s.BoardID()
	rejoin := current == boardID

	// 先登记到新画板，读取快照期间的消息暂存在 pending 中
	s.beginJoin(boardID)
	if !rejoin {
		h.addMember(boardID, s)
	}
	entry := s.joinEntry(boardID)
	abort := func() {
		s.abortJoin()
		if !rejoin {
			h.removeMember(boardID, s)
			h.removePresence(boardID, s.id)
		}
	}

	if err := h.presence.Put(ctx, boardID, entry); err != nil {
		logCtx.WithError(err).Error("Join: failed to write presence")
		abort()
		return nil, upstream(err)
	}
	users, err := h.presence.List(ctx, boardID)
	if err != nil {
		logCtx.WithError(err).Error("Join: failed to list presence")
		abort()
		return nil, upstream(err)
	}
	actions, err := h.history.Recent(ctx, boardID, h.history.ReplayLimit())
	if err != nil {
		logCtx.WithError(err).Error("Join: failed to load history")
		abort()
		return nil, upstream(err)
	}

	joined := &dto.BoardJoined{
		BoardID:        board.ID,
		BoardName:      board.Name,
		SessionID:      s.id,
		Color:          s.color,
		Users:          users,
		DrawingHistory: make([]dto.ActionView, 0, len(actions)),
	}
	for _, a := range actions {
		joined.DrawingHistory = append(joined.DrawingHistory, dto.NewActionView(a))
	}
	msg, err := dto.Encode(dto.EventBoardJoined, joined)
	if err != nil {
		abort()
		return nil, err
	}
	// 连接在 join 期间关闭: 不再提交，Disconnect 只会清理已提交的画板
	if err := s.ctx.Err(); err != nil {
		abort()
		return nil, err
	}

	if current != "" && !rejoin {
		h.leaveLocked(s, current)
	}
	s.completeJoin(msg, entry.JoinedAt)
	if !rejoin {
		h.fanout(boardID, dto.EventUserJoined, entry, s, true)
	}

	h.metrics.ObserveJoin(time.Since(start))
	logCtx.WithFields(logrus.Fields{"rejoin": rejoin, "users": len(users), "history": len(actions)}).Info("Session joined board")
	return joined, nil
}

// Leave 让会话离开 boardID，会话不在该画板时返回 ErrNotInRoom
func (h *Hub) Leave(_ context.Context, s *Session, boardID string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if boardID == "" || s.BoardID() != boardID {
		return service.ErrNotInRoom
	}
	h.leaveLocked(s, boardID)
	return nil
}

// leaveLocked 要求调用方持有 s.opMu
func (h *Hub) leaveLocked(s *Session, boardID string) {
	h.removeMember(boardID, s)
	s.clearBoard()
	h.removePresence(boardID, s.id)
	log := logrus.WithFields(logrus.Fields{"session_id": s.id, "user_id": s.user.ID, "board_id": boardID})
	// 同一用户还有其他会话在线时，对其他成员来说用户并没有离开
	if h.userPresent(boardID, s.user.ID, s.id) {
		log.Info("Session left board, user still present via another session")
		return
	}
	h.fanout(boardID, dto.EventUserLeft, dto.UserLeft{UserID: s.user.ID, SessionID: s.id, BoardID: boardID}, s, true)
	log.Info("Session left board")
}

// userPresent 判断用户在画板上是否还有除 sessionID 之外的在线记录。查询失败时按已离开处理。
func (h *Hub) userPresent(boardID string, userID uint, sessionID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	entries, err := h.presence.List(ctx, boardID)
	if err != nil {
		logrus.WithField("board_id", boardID).WithError(err).Warn("Hub: failed to list presence after leave")
		return false
	}
	for _, e := range entries {
		if e.UserID == userID && e.SessionID != sessionID {
			return true
		}
	}
	return false
}

// removePresence 删除在线记录并重试，使用独立的 context，会话被取消后仍能完成清理
func (h *Hub) removePresence(boardID, sessionID string) {
	var err error
	for attempt := 1; attempt <= presenceRemoveAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		err = h.presence.Remove(ctx, boardID, sessionID)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	// 记录仍会在 TTL 到期后消失
	logrus.WithFields(logrus.Fields{"board_id": boardID, "session_id": sessionID}).WithError(err).Error("Hub: failed to remove presence entry")
}

// Disconnect 离开当前画板并注销会话。由 Session.Close 调用，只会执行一次。
func (h *Hub) Disconnect(s *Session) {
	s.opMu.Lock()
	if boardID := s.BoardID(); boardID != "" {
		h.leaveLocked(s, boardID)
	}
	s.opMu.Unlock()

	h.mu.Lock()
	_, registered := h.sessions[s.id]
	delete(h.sessions, s.id)
	h.mu.Unlock()
	if registered {
		h.metrics.SessionClosed()
	}
}

// Kick 强制断开某用户在某画板上的所有本地会话，返回断开的数量
func (h *Hub) Kick(boardID string, userID uint) int {
	n := 0
	for _, s := range h.members(boardID) {
		if s.user.ID == userID {
			s.Close()
			n++
		}
	}
	return n
}

// resync 断开本实例上某画板的全部会话。跨实例消息丢失后，
// 与本地慢消费者一样，客户端重新加入时从回放中补齐。
func (h *Hub) resync(boardID string) int {
	members := h.members(boardID)
	for _, s := range members {
		h.metrics.Dropped()
		go s.Close()
	}
	return len(members)
}

// KickUser 强制断开某用户的所有本地会话
func (h *Hub) KickUser(userID uint) int {
	h.mu.RLock()
	var targets []*Session
	for _, s := range h.sessions {
		if s.user.ID == userID {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.Close()
	}
	return len(targets)
}

// fanout 将事件投递给房间内的本地成员，并通过 Broker 转发给其他实例。
// 同一会话的 fanout 在其读 goroutine 中顺序执行，因此对每个接收者保持发送顺序。
func (h *Hub) fanout(boardID, event string, payload interface{}, sender *Session, excludeSender bool) {
	msg, err := dto.Encode(event, payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{"board_id": boardID, "event": event}).WithError(err).Error("Hub: failed to encode fan-out message")
		return
	}
	exclude := ""
	if excludeSender && sender != nil {
		exclude = sender.id
	}
	h.deliverLocal(boardID, msg, exclude)
	h.publish(boardID, msg, exclude)
}

func (h *Hub) deliverLocal(boardID string, msg []byte, exclude string) {
	delivered := 0
	for _, m := range h.members(boardID) {
		if exclude != "" && m.id == exclude {
			continue
		}
		if m.deliver(boardID, msg) {
			delivered++
		}
	}
	h.metrics.Delivered(delivered)
}

func (h *Hub) publish(boardID string, msg []byte, exclude string) {
	if h.broker == nil {
		return
	}
	payload, err := json.Marshal(relayMessage{Origin: h.opts.InstanceID, Exclude: exclude, Message: msg})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.broker.Publish(ctx, boardID, payload); err != nil {
		logrus.WithField("board_id", boardID).WithError(err).Warn("Hub: failed to publish to broker")
	}
}

// Run 消费 Broker 转发来的其他实例的消息，直到 ctx 取消或 Broker 关闭。
// 未配置 Broker 时阻塞到 ctx 取消。
func (h *Hub) Run(ctx context.Context) {
	log := logrus.WithFields(logrus.Fields{"component": "hub", "instance_id": h.opts.InstanceID})
	log.Info("Hub is running...")
	if h.broker == nil {
		<-ctx.Done()
		return
	}
	messages := h.broker.Messages()
	for {
		select {
		case <-ctx.Done():
			log.Info("Hub relay stopped")
			return
		case m, ok := <-messages:
			if !ok {
				log.Info("Broker closed, hub relay stopped")
				return
			}
			if m.Lost {
				n := h.resync(m.BoardID)
				log.WithFields(logrus.Fields{"board_id": m.BoardID, "sessions": n}).Warn("Hub: relay messages lost, closing board sessions for replay")
				continue
			}
			var relay relayMessage
			if err := json.Unmarshal(m.Payload, &relay); err != nil {
				log.WithError(err).Warn("Hub: dropping malformed relay message")
				continue
			}
			if relay.Origin == h.opts.InstanceID {
				continue
			}
			h.deliverLocal(m.BoardID, relay.Message, relay.Exclude)
		}
	}
}

// Shutdown 关闭所有会话并拒绝新会话
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, s := range sessions {
			s.Close()
		}
	}()
	select {
	case <-done:
		logrus.WithField("sessions", len(sessions)).Info("Hub shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub shutdown: %w", ctx.Err())
	}
}

// upstream 将存储错误归类为 ErrUpstreamUnavailable，已分类的服务错误保持不变
func upstream(err error) error {
	if errors.Is(err, service.ErrUpstreamUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", service.ErrUpstreamUnavailable, err)
}
