package thread

import (
	"html/template"
	"time"

	"questlog/internal/models"
)

// DeletedPlaceholder replaces the text of soft deleted reviews and replies.
const DeletedPlaceholder = "Message deleted by user"

// Node holds the fields shared by reviews and replies in an assembled thread.
type Node struct {
	ID          uint             `json:"id"`
	UserID      uint             `json:"user_id"`
	GameID      uint             `json:"game_id"`
	Username    string           `json:"username"`
	AvatarURL   string           `json:"profile_pic_url"`
	DisplayText string           `json:"display_text"`
	DisplayHTML template.HTML    `json:"display_html,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	DeletedAt   *time.Time       `json:"deleted_at"`
	Upvotes     int64            `json:"upvotes"`
	Downvotes   int64            `json:"downvotes"`
	ViewerVote  models.VoteValue `json:"viewer_vote,omitempty"`
	Replies     []*ReplyNode     `json:"replies"`
}

// Deleted reports whether the node was soft deleted.
func (n *Node) Deleted() bool {
	return n.DeletedAt != nil
}

type ReviewNode struct {
	Node
	ReviewText string   `json:"review_text,omitempty"`
	Rating     *float64 `json:"rating"`
}

type ReplyNode struct {
	Node
	ReviewID  uint   `json:"review_id"`
	ParentID  *uint  `json:"parent_id"`
	ReplyText string `json:"reply_text,omitempty"`
}

func displayText(text string, deletedAt *time.Time) string {
	if deletedAt != nil {
		return DeletedPlaceholder
	}
	return text
}

func newReviewNode(row *ReviewRow) *ReviewNode {
	n := &ReviewNode{
		Node: Node{
			ID:          row.ID,
			UserID:      row.UserID,
			GameID:      row.GameID,
			Username:    row.AuthorUsername,
			AvatarURL:   row.AuthorAvatarURL,
			DisplayText: displayText(row.Text, row.DeletedAt),
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
			DeletedAt:   row.DeletedAt,
			Upvotes:     row.UpvoteCount,
			Downvotes:   row.DownvoteCount,
			Replies:     []*ReplyNode{},
		},
		Rating: row.RatingSnapshot,
	}
	if row.DeletedAt == nil {
		n.ReviewText = row.Text
	}
	return n
}

func newReplyNode(row *ReplyRow) *ReplyNode {
	n := &ReplyNode{
		Node: Node{
			ID:          row.ID,
			UserID:      row.UserID,
			GameID:      row.GameID,
			Username:    row.AuthorUsername,
			AvatarURL:   row.AuthorAvatarURL,
			DisplayText: displayText(row.Text, row.DeletedAt),
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
			DeletedAt:   row.DeletedAt,
			Upvotes:     row.UpvoteCount,
			Downvotes:   row.DownvoteCount,
			Replies:     []*ReplyNode{},
		},
		ReviewID: row.ReviewID,
		ParentID: row.ParentReplyID,
	}
	if row.DeletedAt == nil {
		n.ReplyText = row.Text
	}
	return n
}
