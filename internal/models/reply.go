package models

import (
	"time"
)

// Reply 评测下的回复，ParentID 为空表示直接回复评测
type Reply struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ReviewID  uint       `gorm:"not null;index" json:"review_id"`
	Review    Review     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ParentID  *uint      `gorm:"index" json:"parent_id"` // Nullable for direct replies to the review
	Parent    *Reply     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	User      User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	GameID    uint       `gorm:"not null;index" json:"game_id"`
	Text      string     `gorm:"column:reply_text;type:text;not null" json:"reply_text"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at"`
}

func (Reply) TableName() string {
	return "review_replies"
}

// IsDeleted reports whether the reply was soft deleted.
func (r *Reply) IsDeleted() bool {
	return r.DeletedAt != nil
}
