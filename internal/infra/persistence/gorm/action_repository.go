package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collaborative-board/internal/domain"
)

// 批量插入时每批的最大行数
const actionBatchSize = 500

// GormActionRepository 是 ActionRepository 接口的 GORM 实现
type GormActionRepository struct {
	db *gorm.DB
}

// NewGormActionRepository 创建 GormActionRepository 实例
func NewGormActionRepository(db *gorm.DB) *GormActionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormActionRepository")
	}
	return &GormActionRepository{db: db}
}

// SaveBatch 实现批量保存操作记录
// (board_id, seq) 冲突的行被忽略，asynq 重试同一批次不会产生重复记录。
func (r *GormActionRepository) SaveBatch(ctx context.Context, actions []domain.Action) error {
	if len(actions) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "board_id"}, {Name: "seq"}},
			DoNothing: true,
		}).
		CreateInBatches(&actions, actionBatchSize).Error
	if err != nil {
		return fmt.Errorf("gorm: failed to save action batch (size %d): %w", len(actions), err)
	}
	return nil
}

// Recent 返回最近的操作，按 seq 降序
func (r *GormActionRepository) Recent(ctx context.Context, boardID string, beforeSeq uint64, limit int) ([]domain.Action, error) {
	var actions []domain.Action
	query := r.db.WithContext(ctx).Where("board_id = ?", boardID)
	if beforeSeq > 0 {
		query = query.Where("seq < ?", beforeSeq)
	}
	err := query.Order("seq DESC").Limit(limit).Find(&actions).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: failed to load recent actions for board '%s': %w", boardID, err)
	}
	return actions, nil
}

// MaxSeq 返回已持久化的最大序列号
func (r *GormActionRepository) MaxSeq(ctx context.Context, boardID string) (uint64, error) {
	var max uint64
	err := r.db.WithContext(ctx).Model(&domain.Action{}).
		Where("board_id = ?", boardID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: failed to get max seq for board '%s': %w", boardID, err)
	}
	return max, nil
}

// BoardsExceeding 返回操作数量超过 keep 的画板
func (r *GormActionRepository) BoardsExceeding(ctx context.Context, keep int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.Action{}).
		Select("board_id").
		Group("board_id").
		Having("COUNT(*) > ?", keep).
		Pluck("board_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: failed to find boards exceeding %d actions: %w", keep, err)
	}
	return ids, nil
}

// OldestBeyond 返回保留窗口之外最旧的操作，按 seq 升序
func (r *GormActionRepository) OldestBeyond(ctx context.Context, boardID string, keep int, limit int) ([]domain.Action, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Action{}).Where("board_id = ?", boardID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("gorm: failed to count actions for board '%s': %w", boardID, err)
	}
	excess := int(total) - keep
	if excess <= 0 {
		return nil, nil
	}
	if limit > 0 && excess > limit {
		excess = limit
	}
	var actions []domain.Action
	err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("seq ASC").
		Limit(excess).
		Find(&actions).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: failed to load oldest actions for board '%s': %w", boardID, err)
	}
	return actions, nil
}

// DeleteThrough 删除 seq <= throughSeq 的操作
func (r *GormActionRepository) DeleteThrough(ctx context.Context, boardID string, throughSeq uint64) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("board_id = ? AND seq <= ?", boardID, throughSeq).Delete(&domain.Action{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("gorm: failed to prune actions of board '%s' through seq %d: %w", boardID, throughSeq, err)
	}
	return deleted, nil
}
