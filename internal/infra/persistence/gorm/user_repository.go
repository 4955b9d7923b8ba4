// Package gormpersistence 提供 repository 接口的 GORM 实现。
package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"collaborative-board/internal/domain"
	"collaborative-board/internal/repository"
)

// GormUserRepository 是 UserRepository 接口的 GORM 实现
type GormUserRepository struct {
	db *gorm.DB // 依赖 GORM DB 连接
}

// NewGormUserRepository 创建 GormUserRepository 实例
// db *gorm.DB 通过依赖注入传入
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	if db == nil {
		// 启动时失败，避免运行时 nil 指针
		panic("database connection cannot be nil for GormUserRepository")
	}
	return &GormUserRepository{db: db}
}

// FindByUsername 根据用户名查找用户
func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	// 用户名有唯一索引，Take 不需要排序
	if err := r.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		// 记录未找到映射为 ErrUserNotFound，其他数据库错误包装后返回
		return nil, notFoundOr(err, repository.ErrUserNotFound, "find user by username '%s'", username)
	}
	return &user, nil
}

// FindByID 根据用户 ID 查找用户
func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	// GORM 会自动根据主键查找
	if err := r.db.WithContext(ctx).Take(&user, id).Error; err != nil {
		return nil, notFoundOr(err, repository.ErrUserNotFound, "find user by id %d", id)
	}
	return &user, nil
}

// Save 新用户 (ID 为 0) 使用 INSERT，已有用户整行更新
func (r *GormUserRepository) Save(ctx context.Context, user *domain.User) error {
	db := r.db.WithContext(ctx)
	// 1. 根据主键选择 INSERT 或 UPDATE
	var err error
	if user.ID == 0 {
		err = db.Create(user).Error // 成功后 user.ID 被回填
	} else {
		err = db.Save(user).Error
	}
	// 2. 唯一约束冲突映射为仓库层错误
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry // 用户名或邮箱已被占用
		}
		return fmt.Errorf("gorm: save user '%s': %w", user.Username, err)
	}
	return nil
}
