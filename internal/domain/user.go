// Package domain 定义了协作画板的核心数据模型。
package domain

import "time"

// User 表示应用程序中的用户。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null" json:"username"`
	Password  string    `gorm:"type:text;not null" json:"-"` // 哈希后的密码
	Email     string    `gorm:"type:varchar(191);uniqueIndex:idx_email" json:"email,omitempty"`
	Avatar    string    `gorm:"type:varchar(512)" json:"avatar,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Summary 返回广播给其他成员的用户摘要 (不包含邮箱等隐私字段)。
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}

// UserSummary 是对外展示的用户信息。
type UserSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}
