package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"collaborative-board/internal/domain"
)

// MigrateDB 自动迁移所有模型。
// 所有字符串索引列都声明了 varchar(191) 或 size，MySQL utf8mb4 下索引长度不会超限。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}
	err := db.AutoMigrate(
		&domain.User{},
		&domain.Board{},
		&domain.BoardCollaborator{},
		&domain.Action{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}
	logrus.Info("Database migration completed successfully")
	return nil
}
