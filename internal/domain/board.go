package domain

import "time"

// Board 表示一个协作画板的访问记录 (由 CRUD 侧维护，协作引擎只读)。
type Board struct {
	ID            string              `gorm:"primaryKey;size:64" json:"id"`
	Name          string              `gorm:"size:100;not null" json:"name"`
	Description   string              `gorm:"size:500" json:"description,omitempty"`
	OwnerID       uint                `gorm:"index;not null" json:"ownerId"`
	IsPublic      bool                `gorm:"not null;default:false;index" json:"isPublic"`
	LastActivity  time.Time           `gorm:"index" json:"lastActivity"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updatedAt"`
	Collaborators []BoardCollaborator `gorm:"foreignKey:BoardID;constraint:OnDelete:CASCADE" json:"collaborators,omitempty"`
}

// BoardCollaborator 记录画板的协作者 (board, user) 关系。
type BoardCollaborator struct {
	BoardID   string    `gorm:"primaryKey;size:64" json:"boardId"`
	UserID    uint      `gorm:"primaryKey;index" json:"userId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// IsOwner 判断用户是否为画板所有者。
func (b *Board) IsOwner(userID uint) bool {
	return b != nil && b.OwnerID == userID
}

// IsCollaborator 判断用户是否在协作者列表中。
func (b *Board) IsCollaborator(userID uint) bool {
	if b == nil {
		return false
	}
	for _, c := range b.Collaborators {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// HasAccess 当用户是所有者、协作者或画板公开时返回 true。
func (b *Board) HasAccess(userID uint) bool {
	if b == nil {
		return false
	}
	return b.IsOwner(userID) || b.IsCollaborator(userID) || b.IsPublic
}
