// Package boardclient 是协作画板 WebSocket 协议的 Go 客户端，
// 供命令行工具和端到端测试使用。
package boardclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/dto"
)

const (
	writeWait    = 10 * time.Second
	eventsBuffer = 256
)

// ErrClosed 表示连接已经关闭
var ErrClosed = errors.New("boardclient: connection closed")

// Client 维护一条到服务端的连接，以及当前画板的本地历史与撤销指针。
type Client struct {
	conn   *websocket.Conn
	events chan *dto.Envelope
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu        sync.Mutex
	boardID   string
	sessionID string
	lastSeq   uint64
	history   *domain.LocalHistory
	readErr   error
}

// Dial 使用 bearer token 连接 WebSocket 端点，例如 ws://host:8080/ws
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("boardclient: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("boardclient: dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		events:  make(chan *dto.Envelope, eventsBuffer),
		done:    make(chan struct{}),
		history: domain.NewLocalHistory(),
	}
	go c.readLoop()
	return c, nil
}

// Events 返回所有入站事件，连接关闭后通道被关闭
func (c *Client) Events() <-chan *dto.Envelope { return c.events }

// Err 返回导致读循环退出的错误
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		env, err := dto.Decode(raw)
		if err != nil {
			logrus.WithError(err).Warn("boardclient: dropping undecodable message")
			continue
		}
		c.apply(env)
		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}

// apply 根据入站事件更新本地历史
func (c *Client) apply(env *dto.Envelope) {
	switch env.Event {
	case dto.EventBoardJoined:
		var joined dto.BoardJoined
		if err := json.Unmarshal(env.Data, &joined); err != nil {
			return
		}
		actions := make([]domain.Action, 0, len(joined.DrawingHistory))
		for _, v := range joined.DrawingHistory {
			actions = append(actions, v.ToDomain())
		}
		// 回放按最新在前，本地历史按时间正序
		sort.Slice(actions, func(i, j int) bool { return actions[i].Seq < actions[j].Seq })
		c.mu.Lock()
		c.boardID = joined.BoardID
		c.sessionID = joined.SessionID
		c.history.Load(actions)
		c.lastSeq = 0
		if n := len(actions); n > 0 {
			c.lastSeq = actions[n-1].Seq
		}
		c.mu.Unlock()
	case dto.EventDrawingAction:
		var view dto.ActionView
		if err := json.Unmarshal(env.Data, &view); err != nil {
			return
		}
		c.mu.Lock()
		// join 期间到达的操作可能已经包含在回放中
		if view.BoardID == c.boardID && view.Seq > c.lastSeq {
			c.history.Push(view.ToDomain())
			c.lastSeq = view.Seq
		}
		c.mu.Unlock()
	}
}

// Send 发送一个协议事件
func (c *Client) Send(event string, payload interface{}) error {
	msg, err := dto.Encode(event, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("boardclient: send %s: %w", event, err)
	}
	return nil
}

// Join 请求加入画板，结果通过 board-joined 或 error 事件返回
func (c *Client) Join(boardID string) error {
	return c.Send(dto.EventJoinBoard, boardID)
}

// Leave 离开画板
func (c *Client) Leave(boardID string) error {
	return c.Send(dto.EventLeaveBoard, dto.BoardRef{BoardID: boardID})
}

// Draw 发送一个绘图操作，并乐观地加入本地历史。服务端不会回显给发送者。
func (c *Client) Draw(boardID string, payload domain.ActionPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req := dto.DrawingActionRequest{
		BoardID: boardID,
		Action:  dto.IncomingAction{Type: payload.Kind(), Data: data},
	}
	if err := c.Send(dto.EventDrawingAction, req); err != nil {
		return err
	}
	c.mu.Lock()
	c.history.Push(domain.Action{BoardID: boardID, Kind: payload.Kind(), Data: string(data), CreatedAt: time.Now()})
	c.mu.Unlock()
	return nil
}

// MoveCursor 发送光标位置
func (c *Client) MoveCursor(boardID string, x, y float64) error {
	return c.Send(dto.EventCursorUpdate, dto.CursorUpdateRequest{BoardID: boardID, Cursor: &domain.Cursor{X: x, Y: y}})
}

// Chat 发送聊天消息，服务端会回显给发送者
func (c *Client) Chat(boardID, message string) error {
	return c.Send(dto.EventChatMessage, dto.ChatMessageRequest{BoardID: boardID, Message: message})
}

// AskAI 发送 ai-request
func (c *Client) AskAI(boardID, kind string, request interface{}) error {
	raw, err := json.Marshal(request)
	if err != nil {
		return err
	}
	return c.Send(dto.EventAIRequest, dto.AIRequest{BoardID: boardID, Type: kind, Request: raw})
}

// Undo 本地撤销一步，不会通知其他参与者
func (c *Client) Undo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Undo()
}

// Redo 本地重做一步
func (c *Client) Redo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Redo()
}

// Visible 返回本地当前可见的操作
func (c *Client) Visible() []domain.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Visible()
}

// SessionID 返回最近一次 board-joined 中的会话 ID
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Expect 等待下一个指定事件，期间收到的其他事件被跳过
func (c *Client) Expect(ctx context.Context, event string) (*dto.Envelope, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("boardclient: waiting for %s: %w", event, ctx.Err())
		case env, ok := <-c.events:
			if !ok {
				return nil, ErrClosed
			}
			if env.Event == event {
				return env, nil
			}
		}
	}
}

// ExpectInto 等待指定事件并解析其负载
func (c *Client) ExpectInto(ctx context.Context, event string, out interface{}) error {
	env, err := c.Expect(ctx, event)
	if err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

// Close 发送关闭帧并断开连接
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
