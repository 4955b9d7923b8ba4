package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/repository"
)

// GormBoardRepository 是 BoardRepository 接口的 GORM 实现
type GormBoardRepository struct {
	db *gorm.DB
}

// NewGormBoardRepository 创建 GormBoardRepository 实例
func NewGormBoardRepository(db *gorm.DB) *GormBoardRepository {
	if db == nil {
		panic("database connection cannot be nil for GormBoardRepository")
	}
	return &GormBoardRepository{db: db}
}

// FindByID 查找画板，同时预加载协作者
func (r *GormBoardRepository) FindByID(ctx context.Context, id string) (*domain.Board, error) {
	var board domain.Board
	err := r.db.WithContext(ctx).Preload("Collaborators").Where("id = ?", id).Take(&board).Error
	if err != nil {
		return nil, notFoundOr(err, repository.ErrBoardNotFound, "find board by id '%s'", id)
	}
	return &board, nil
}

// Save 创建或更新画板 (不级联协作者)
func (r *GormBoardRepository) Save(ctx context.Context, board *domain.Board) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Save(board).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save board '%s': %w", board.ID, err)
	}
	return nil
}

// AddCollaborator 添加协作者，已存在时不做任何事
func (r *GormBoardRepository) AddCollaborator(ctx context.Context, boardID string, userID uint) error {
	c := domain.BoardCollaborator{BoardID: boardID, UserID: userID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&c).Error
	if err != nil {
		return fmt.Errorf("gorm: add collaborator %d to board '%s': %w", userID, boardID, err)
	}
	return nil
}

// RemoveCollaborator 删除协作者
func (r *GormBoardRepository) RemoveCollaborator(ctx context.Context, boardID string, userID uint) error {
	result := r.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		Delete(&domain.BoardCollaborator{})
	if result.Error != nil {
		return fmt.Errorf("gorm: remove collaborator %d from board '%s': %w", userID, boardID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListAccessible 分页列出用户可访问的画板
func (r *GormBoardRepository) ListAccessible(ctx context.Context, userID uint, offset, limit int) ([]domain.Board, int64, error) {
	// Count 会改写语句，计数和查询各自构建
	accessible := func() *gorm.DB {
		collaborating := r.db.Model(&domain.BoardCollaborator{}).Select("board_id").Where("user_id = ?", userID)
		return r.db.WithContext(ctx).Model(&domain.Board{}).
			Where("owner_id = ? OR is_public = ? OR id IN (?)", userID, true, collaborating)
	}

	var total int64
	if err := accessible().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gorm: count boards for user %d: %w", userID, err)
	}
	var boards []domain.Board
	err := accessible().Preload("Collaborators").
		Order("last_activity DESC").Order("id").
		Offset(offset).Limit(limit).
		Find(&boards).Error
	if err != nil {
		return nil, 0, fmt.Errorf("gorm: list boards for user %d: %w", userID, err)
	}
	return boards, total, nil
}

// Touch 更新画板的最后活跃时间
func (r *GormBoardRepository) Touch(ctx context.Context, boardID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.Board{}).
		Where("id = ? AND (last_activity IS NULL OR last_activity < ?)", boardID, at).
		UpdateColumn("last_activity", at).Error
	if err != nil {
		return fmt.Errorf("gorm: touch board '%s': %w", boardID, err)
	}
	return nil
}
