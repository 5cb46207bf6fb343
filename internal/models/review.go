package models

import (
	"time"
)

// Review 用户对某个游戏的评测，删除只打 deleted_at 标记
// 同一用户同一游戏最多一条未删除评测 (partial unique index)
type Review struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index;uniqueIndex:idx_reviews_active_user_game,where:deleted_at IS NULL" json:"user_id"`
	User      User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	GameID    uint       `gorm:"not null;index;uniqueIndex:idx_reviews_active_user_game,where:deleted_at IS NULL" json:"game_id"`
	Text      string     `gorm:"column:review_text;type:text;not null" json:"review_text"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at"`
}

// IsDeleted reports whether the review was soft deleted.
func (r *Review) IsDeleted() bool {
	return r.DeletedAt != nil
}
