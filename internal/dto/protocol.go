// Package dto 定义了 WebSocket 协议中客户端与服务端交换的消息结构。
package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// 客户端 -> 服务端 事件
const (
	EventJoinBoard     = "join-board"
	EventLeaveBoard    = "leave-board"
	EventDrawingAction = "drawing-action"
	EventCursorUpdate  = "cursor-update"
	EventChatMessage   = "chat-message"
	EventAIRequest     = "ai-request"
)

// 服务端 -> 客户端 事件 (drawing-action 与 chat-message 双向同名)
const (
	EventBoardJoined      = "board-joined"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventUserCursorUpdate = "user-cursor-update"
	EventAIResponse       = "ai-response"
	EventError            = "error"
)

// ErrMissingBoardID 表示消息中缺少画板 ID。
var ErrMissingBoardID = errors.New("boardId is required")

// Envelope 是线上传输的统一消息格式: {"event": "...", "data": ...}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode 将事件名和负载序列化为一条完整的消息。
func Encode(event string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode 解析一条入站消息的外层信封。
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Event == "" {
		return nil, errors.New("invalid envelope: event is required")
	}
	return &env, nil
}

// BoardRef 是 join-board / leave-board 的负载。
// 客户端可以直接发送字符串 "b1"，也可以发送 {"boardId":"b1"}。
type BoardRef struct {
	BoardID string `json:"boardId"`
}

func (r *BoardRef) UnmarshalJSON(raw []byte) error {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		r.BoardID = strings.TrimSpace(id)
		return nil
	}
	type plain BoardRef
	var p plain
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	r.BoardID = strings.TrimSpace(p.BoardID)
	return nil
}

// ParseBoardRef 解析 join-board / leave-board 负载并确保画板 ID 非空。
func ParseBoardRef(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", ErrMissingBoardID
	}
	var ref BoardRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", err
	}
	if ref.BoardID == "" {
		return "", ErrMissingBoardID
	}
	return ref.BoardID, nil
}

// ErrorPayload 是 error 事件的负载，所有非致命错误都以此形式告知客户端。
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Event   string `json:"event,omitempty"` // 触发错误的入站事件
}
