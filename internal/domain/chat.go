package domain

// ChatMessage 是房间内广播的聊天消息，不写入历史日志。
type ChatMessage struct {
	ID        string `json:"id"`
	BoardID   string `json:"boardId"`
	UserID    uint   `json:"userId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // 服务端毫秒时间戳
}
