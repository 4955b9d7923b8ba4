package repository

import (
	"context"

	"collaborative-board/internal/domain"
)

// ActionRepository 定义了持久化历史日志的存储和查询。
type ActionRepository interface {
	// SaveBatch 批量保存 Action 记录。
	// (board_id, seq) 已存在的记录会被忽略，因此重试是安全的。
	SaveBatch(ctx context.Context, actions []domain.Action) error

	// Recent 返回画板最近的 limit 条操作，按 seq 降序。
	// beforeSeq > 0 时只返回 seq < beforeSeq 的记录。
	Recent(ctx context.Context, boardID string, beforeSeq uint64, limit int) ([]domain.Action, error)

	// MaxSeq 返回画板已持久化的最大序列号，没有记录时为 0。
	MaxSeq(ctx context.Context, boardID string) (uint64, error)

	// BoardsExceeding 返回持久化操作数超过 keep 的画板 ID。
	BoardsExceeding(ctx context.Context, keep int) ([]string, error)

	// OldestBeyond 返回超出保留窗口 (最新 keep 条之外) 的最旧操作，按 seq 升序，最多 limit 条。
	OldestBeyond(ctx context.Context, boardID string, keep int, limit int) ([]domain.Action, error)

	// DeleteThrough 删除 seq <= throughSeq 的所有操作，返回删除数量。
	// 只会从最旧的一端裁剪，不会删除中间的记录。
	DeleteThrough(ctx context.Context, boardID string, throughSeq uint64) (int64, error)
}
