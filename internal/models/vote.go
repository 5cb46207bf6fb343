package models

import (
	"time"
)

type TargetType string

const (
	TargetReview TargetType = "review"
	TargetReply  TargetType = "reply"
)

// Valid reports whether t names a votable target.
func (t TargetType) Valid() bool {
	return t == TargetReview || t == TargetReply
}

type VoteValue string

const (
	VoteNone     VoteValue = "none"
	VoteUpvote   VoteValue = "upvote"
	VoteDownvote VoteValue = "downvote"
)

// Valid reports whether v is one of upvote, downvote or none.
func (v VoteValue) Valid() bool {
	return v == VoteNone || v == VoteUpvote || v == VoteDownvote
}

// Vote 每个用户对每个目标最多一条记录，设置为 none 时删除
type Vote struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_votes_user_target" json:"user_id"`
	TargetType TargetType `gorm:"type:varchar(10);not null;uniqueIndex:idx_votes_user_target;index:idx_votes_target" json:"target_type"`
	TargetID   uint       `gorm:"not null;uniqueIndex:idx_votes_user_target;index:idx_votes_target" json:"target_id"`
	Value      VoteValue  `gorm:"column:vote;type:varchar(10);not null" json:"vote"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
