package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// DefaultPongWait 是等待下一个 pong 的默认时间，超过即视为断线。
	DefaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// 每个会话的发送缓冲区大小，写满即视为慢消费者
	sendBufferSize = 256
)

// Session 代表一个已认证、仍然打开的 WebSocket 连接。
// Session 只存在于本进程内，不会持久化。
type Session struct {
	id   string
	user domain.User
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	// opMu 串行化 join/leave/disconnect，断线清理会等待进行中的 join 结束
	opMu sync.Mutex

	mu           sync.Mutex
	boardID      string
	joiningBoard string   // 正在加入的画板，提交前会话仍属于 boardID
	pending      [][]byte // join 完成前收到的 joiningBoard 消息
	color        string
	cursor       *domain.Cursor
	joinedAt     time.Time
	lastActivity time.Time
	closed       bool
}

func newSession(h *Hub, conn *websocket.Conn, user domain.User) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Session{
		id:           id,
		user:         user,
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		color:        domain.ColorForSession(id),
		lastActivity: time.Now(),
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) User() domain.User { return s.user }
func (s *Session) Color() string     { return s.color }

// BoardID 返回会话当前所在的画板，未加入时为空
func (s *Session) BoardID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boardID
}

// LastActivity 返回最后一次收到客户端消息或 pong 的时间
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Done 在会话关闭后被关闭
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"session_id": s.id, "user_id": s.user.ID, "board_id": s.BoardID()})
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// beginJoin 开始加入 boardID。提交前该画板的消息暂存在 pending 中，
// 当前画板的消息照常投递。
func (s *Session) beginJoin(boardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joiningBoard = boardID
	s.pending = nil
}

// completeJoin 提交 join: 切换当前画板，先投递 board-joined，再投递暂存的消息
func (s *Session) completeJoin(joined []byte, joinedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boardID != s.joiningBoard {
		s.boardID = s.joiningBoard
		s.joinedAt = joinedAt
		s.cursor = nil
	}
	s.joiningBoard = ""
	s.enqueueLocked(joined)
	for _, msg := range s.pending {
		s.enqueueLocked(msg)
	}
	s.pending = nil
}

// abortJoin 放弃进行中的 join，会话保持原来的画板。
// 重新加入当前画板时暂存的消息仍属于该画板，照常投递。
func (s *Session) abortJoin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joiningBoard != "" && s.joiningBoard == s.boardID {
		for _, msg := range s.pending {
			s.enqueueLocked(msg)
		}
	}
	s.joiningBoard = ""
	s.pending = nil
}

// clearBoard 离开当前画板
func (s *Session) clearBoard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boardID = ""
	s.cursor = nil
}

func (s *Session) setCursor(c domain.Cursor) {
	s.mu.Lock()
	s.cursor = &c
	s.mu.Unlock()
}

// presenceEntry 返回会话在当前画板的在线记录
func (s *Session) presenceEntry() domain.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cursor *domain.Cursor
	if s.cursor != nil {
		c := *s.cursor
		cursor = &c
	}
	return s.entryLocked(cursor, s.joinedAt)
}

// joinEntry 返回会话加入 boardID 后的在线记录。加入其他画板时光标清空。
func (s *Session) joinEntry(boardID string) domain.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if boardID == s.boardID {
		var cursor *domain.Cursor
		if s.cursor != nil {
			c := *s.cursor
			cursor = &c
		}
		return s.entryLocked(cursor, s.joinedAt)
	}
	return s.entryLocked(nil, time.Now())
}

func (s *Session) entryLocked(cursor *domain.Cursor, joinedAt time.Time) domain.PresenceEntry {
	return domain.PresenceEntry{
		UserID:    s.user.ID,
		SessionID: s.id,
		Username:  s.user.Username,
		Avatar:    s.user.Avatar,
		Cursor:    cursor,
		Color:     s.color,
		JoinedAt:  joinedAt,
		UpdatedAt: time.Now().UTC(),
	}
}

// deliver 投递一条属于 boardID 的房间消息。会话已不在该画板时丢弃。
func (s *Session) deliver(boardID string, msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.joiningBoard != "" && s.joiningBoard == boardID {
		s.pending = append(s.pending, msg)
		return true
	}
	if s.boardID != boardID {
		return false
	}
	return s.enqueueLocked(msg)
}

// reply 直接发送给本会话，不检查房间
func (s *Session) reply(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.enqueueLocked(msg)
}

func (s *Session) enqueueLocked(msg []byte) bool {
	select {
	case s.send <- msg:
		return true
	default:
		// 慢消费者: 断开连接，客户端重新加入时会拿到回放
		s.hub.metrics.Dropped()
		logrus.WithFields(logrus.Fields{"session_id": s.id, "user_id": s.user.ID}).Warn("Session send queue full, closing slow consumer")
		go s.Close()
		return false
	}
}

// Close 关闭会话。无论由客户端、网络错误还是服务端触发，清理都只执行一次。
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		close(s.done)
		s.hub.Disconnect(s)
		s.logger().Info("Session closed")
	})
}

// Run 启动会话的读写 goroutine
func (s *Session) Run() {
	go s.WritePump()
	go s.ReadPump()
}

// ReadPump 从 WebSocket 读取消息并按接收顺序逐条交给 Router 处理，
// 因此同一会话的事件总是按发送顺序生效。
func (s *Session) ReadPump() {
	// 连接由 WritePump 负责关闭，保证最后排队的消息能写出
	defer s.Close()

	pongWait := s.hub.opts.PongWait
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				s.logger().Debug("WebSocket connection closed")
			}
			return
		}
		s.touch()
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			s.logger().Debugf("Ignoring non-text message type: %d", messageType)
			continue
		}
		s.hub.router.Dispatch(s, message)

		select {
		case <-s.done:
			return
		default:
		}
	}
}

// WritePump 将发送队列中的消息写入连接，并定期发送 ping。
func (s *Session) WritePump() {
	ticker := time.NewTicker(s.hub.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger().WithError(err).Warn("Failed to write message to websocket")
				s.Close()
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger().WithError(err).Debug("Failed to send ping message")
				s.Close()
				return
			}

		case <-s.done:
			// 尽量把已排队的消息 (例如最后一条 error) 写出去
			for {
				select {
				case message := <-s.send:
					_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
