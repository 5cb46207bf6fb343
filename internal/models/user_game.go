package models

import (
	"time"
)

const (
	GameStatusPlaying   = "playing"
	GameStatusCompleted = "completed"
	GameStatusDropped   = "dropped"
	GameStatusPlanned   = "planned"
	GameStatusOnHold    = "on_hold"
)

// UserGame 用户游戏清单条目，评测展示的评分来自这里
type UserGame struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_user_game" json:"-"`
	User        User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	GameID      uint      `gorm:"not null;uniqueIndex:idx_user_game" json:"game_id"`
	Rating      *float64  `gorm:"type:numeric(4,2)" json:"rating"`
	Status      *string   `gorm:"size:20" json:"status"`
	Favorited   bool      `gorm:"default:false" json:"favorited"`
	HoursPlayed *int      `json:"hours_played"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserGamePatch 清单条目的部分更新，nil 字段保留原值
type UserGamePatch struct {
	Rating      *float64 `json:"rating" validate:"omitempty,gte=0,lte=10"`
	Status      *string  `json:"status" validate:"omitempty,oneof=playing completed dropped planned on_hold"`
	Favorited   *bool    `json:"favorited"`
	HoursPlayed *int     `json:"hours_played" validate:"omitempty,gte=0"`
}
