package domain

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Cursor 是用户在画布上的最后已知指针位置。
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PresenceEntry 是 (board, session) 级别的临时在线记录，保存在 Presence Store 中。
// 它是"谁在房间里"的权威来源，内存中的会话集合只用于本实例的消息投递。
type PresenceEntry struct {
	UserID    uint      `json:"id"`
	SessionID string    `json:"sessionId"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	Cursor    *Cursor   `json:"cursor,omitempty"`
	Color     string    `json:"color"`
	JoinedAt  time.Time `json:"joinedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ColorForSession 为会话生成一个稳定的显示颜色。
// 同一会话 ID 总是得到同一颜色，颜色在加入时确定后不再变化。
func ColorForSession(sessionID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return fmt.Sprintf("hsl(%d, 70%%, 50%%)", h.Sum32()%360)
}
