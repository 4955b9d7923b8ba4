package repository

import (
	"context"
	"time"

	"collaborative-board/internal/domain"
)

// BoardRepository 定义了画板访问记录的存储操作。
// 协作引擎只通过 FindByID 读取访问信息，其余方法服务于 CRUD 接口。
type BoardRepository interface {
	// FindByID 查找画板并预加载协作者列表。
	// 如果画板不存在，返回 ErrBoardNotFound。
	FindByID(ctx context.Context, id string) (*domain.Board, error)

	// Save 创建或更新画板。
	Save(ctx context.Context, board *domain.Board) error

	// AddCollaborator 添加协作者，重复添加不报错。
	AddCollaborator(ctx context.Context, boardID string, userID uint) error

	// RemoveCollaborator 删除协作者。协作者不存在时返回 ErrNotFound。
	RemoveCollaborator(ctx context.Context, boardID string, userID uint) error

	// ListAccessible 按最后活跃时间倒序返回用户拥有、协作或公开的画板，以及总数。
	ListAccessible(ctx context.Context, userID uint, offset, limit int) ([]domain.Board, int64, error)

	// Touch 更新画板的最后活跃时间。
	Touch(ctx context.Context, boardID string, at time.Time) error
}
