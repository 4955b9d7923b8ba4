package dto

import (
	"encoding/json"
	"strings"
	"time"

	"collaborative-board/internal/domain"
)

// IncomingAction 是客户端发来的绘图操作。
// 负载字段可以与 type 平铺在同一对象中 ({"type":"draw","points":[...]})，
// 也可以放在 data 字段里 ({"type":"draw","data":{"points":[...]}})。
type IncomingAction struct {
	Type domain.ActionKind
	Data json.RawMessage
}

func (a *IncomingAction) UnmarshalJSON(raw []byte) error {
	var head struct {
		Type domain.ActionKind `json:"type"`
		Data json.RawMessage   `json:"data"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return err
	}
	a.Type = domain.ActionKind(strings.TrimSpace(string(head.Type)))
	if len(head.Data) > 0 && string(head.Data) != "null" {
		a.Data = head.Data
	} else {
		a.Data = append(json.RawMessage(nil), raw...)
	}
	return nil
}

func (a IncomingAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type domain.ActionKind `json:"type"`
		Data json.RawMessage   `json:"data,omitempty"`
	}{a.Type, a.Data})
}

// DrawingActionRequest 是 drawing-action 入站负载。
type DrawingActionRequest struct {
	BoardID string         `json:"boardId"`
	Action  IncomingAction `json:"action"`
}

// CursorUpdateRequest 是 cursor-update 入站负载。
type CursorUpdateRequest struct {
	BoardID string         `json:"boardId"`
	Cursor  *domain.Cursor `json:"cursor"`
}

// ChatMessageRequest 是 chat-message 入站负载。
type ChatMessageRequest struct {
	BoardID string `json:"boardId"`
	Message string `json:"message"`
}

// ActionView 是广播和回放中使用的绘图操作表示。
type ActionView struct {
	Seq       uint64            `json:"seq"`
	BoardID   string            `json:"boardId"`
	Type      domain.ActionKind `json:"type"`
	Data      json.RawMessage   `json:"data"`
	UserID    uint              `json:"userId"`
	Username  string            `json:"username"`
	Timestamp int64             `json:"timestamp"`
}

// NewActionView 将领域模型转换为出站表示。
func NewActionView(a domain.Action) ActionView {
	return ActionView{
		Seq:       a.Seq,
		BoardID:   a.BoardID,
		Type:      a.Kind,
		Data:      a.Payload(),
		UserID:    a.UserID,
		Username:  a.Username,
		Timestamp: a.CreatedAt.UnixMilli(),
	}
}

// ToDomain 将出站表示还原为领域模型 (客户端使用)。
func (v ActionView) ToDomain() domain.Action {
	return domain.Action{
		BoardID:   v.BoardID,
		Seq:       v.Seq,
		Kind:      v.Type,
		Data:      string(v.Data),
		UserID:    v.UserID,
		Username:  v.Username,
		CreatedAt: time.UnixMilli(v.Timestamp),
	}
}

// BoardJoined 是 board-joined 负载。DrawingHistory 按最新在前排序。
type BoardJoined struct {
	BoardID        string                 `json:"boardId"`
	BoardName      string                 `json:"boardName"`
	SessionID      string                 `json:"sessionId"`
	Color          string                 `json:"color"`
	Users          []domain.PresenceEntry `json:"users"`
	DrawingHistory []ActionView           `json:"drawingHistory"`
}

// UserLeft 是 user-left 负载。
type UserLeft struct {
	UserID    uint   `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	BoardID   string `json:"boardId"`
}

// UserCursorUpdate 是 user-cursor-update 负载。
type UserCursorUpdate struct {
	UserID   uint          `json:"userId"`
	Username string        `json:"username"`
	Color    string        `json:"color,omitempty"`
	Cursor   domain.Cursor `json:"cursor"`
}

// AIRequest 是 ai-request 入站负载。
type AIRequest struct {
	BoardID string          `json:"boardId"`
	Type    string          `json:"type"`
	Request json.RawMessage `json:"request,omitempty"`
}

// AIResponse 是 ai-response 出站负载，只发送给请求者。
type AIResponse struct {
	Type     string          `json:"type"`
	Request  json.RawMessage `json:"request,omitempty"`
	Response interface{}     `json:"response"`
}

// Pagination 描述分页结果
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// BoardPage 是画板列表接口的响应
type BoardPage struct {
	Boards     []domain.Board `json:"boards"`
	Pagination Pagination     `json:"pagination"`
}

// BoardHistory 是画板历史接口的响应，最新的操作在前
type BoardHistory struct {
	BoardID string       `json:"boardId"`
	History []ActionView `json:"history"`
}
