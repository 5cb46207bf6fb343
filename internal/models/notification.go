package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeReply  NotificationType = "reply"
	NotificationTypeUpvote NotificationType = "upvote"
	NotificationTypeSystem NotificationType = "system"
)

// Notification 站内通知，删除即忽略
// 同一人对同一内容的点赞通知最多一条 (partial unique index idx_notifications_upvote_once)
type Notification struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	UserID     uint             `gorm:"not null;index;uniqueIndex:idx_notifications_upvote_once,where:type = 'upvote'" json:"user_id"` // Receiver
	User       User             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ActorID    *uint            `gorm:"index;uniqueIndex:idx_notifications_upvote_once" json:"actor_id"` // Sender
	Actor      *User            `gorm:"foreignKey:ActorID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"actor,omitempty"`
	Type       NotificationType `gorm:"type:varchar(20);not null;uniqueIndex:idx_notifications_upvote_once" json:"type"`
	Message    string           `gorm:"type:text;not null" json:"message"`
	Link       string           `json:"link"`
	TargetType TargetType       `gorm:"type:varchar(10);index:idx_notifications_target;uniqueIndex:idx_notifications_upvote_once" json:"target_type,omitempty"`
	TargetID   uint             `gorm:"index:idx_notifications_target;uniqueIndex:idx_notifications_upvote_once" json:"target_id,omitempty"`
	IsRead     bool             `gorm:"default:false;index" json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}
