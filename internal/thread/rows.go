package thread

import (
	"time"
)

// ReviewRow is one review of a game joined with its author, the author's list rating and vote totals.
type ReviewRow struct {
	ID              uint
	UserID          uint
	GameID          uint
	Text            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
	AuthorUsername  string
	AuthorAvatarURL string
	RatingSnapshot  *float64
	UpvoteCount     int64
	DownvoteCount   int64
}

// ReplyRow is one reply of a game. ParentReplyID is nil for direct replies to the review.
type ReplyRow struct {
	ID              uint
	ReviewID        uint
	ParentReplyID   *uint
	UserID          uint
	GameID          uint
	Text            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
	AuthorUsername  string
	AuthorAvatarURL string
	UpvoteCount     int64
	DownvoteCount   int64
}
