package domain

// LocalHistory 是客户端本地的撤销/重做指针。
// 它只影响本地可见的前缀，不会向其他参与者广播任何撤回。
type LocalHistory struct {
	actions []Action
	index   int // 指向最后一个可见操作，-1 表示为空
}

// NewLocalHistory 创建一个空的本地历史。
func NewLocalHistory() *LocalHistory {
	return &LocalHistory{index: -1}
}

// Load 用服务端回放的操作 (按时间正序) 重置本地历史，指针指向末尾。
func (h *LocalHistory) Load(actions []Action) {
	h.actions = append(h.actions[:0], actions...)
	h.index = len(h.actions) - 1
}

// Push 在指针之后追加操作，丢弃任何可重做的后缀。
func (h *LocalHistory) Push(a Action) {
	h.actions = append(h.actions[:h.index+1], a)
	h.index = len(h.actions) - 1
}

// Undo 将指针回退一步。指针为 0 时为空操作。
func (h *LocalHistory) Undo() bool {
	if h.index <= 0 {
		return false
	}
	h.index--
	return true
}

// Redo 将指针前进一步。指针已在末尾时为空操作。
func (h *LocalHistory) Redo() bool {
	if h.index >= len(h.actions)-1 {
		return false
	}
	h.index++
	return true
}

// Visible 返回当前可见的操作前缀。
func (h *LocalHistory) Visible() []Action {
	out := make([]Action, h.index+1)
	copy(out, h.actions[:h.index+1])
	return out
}

func (h *LocalHistory) Index() int { return h.index }
func (h *LocalHistory) Len() int   { return len(h.actions) }
