package thread

import (
	"questlog/internal/models"
)

// Target identifies a votable node.
type Target struct {
	Type models.TargetType
	ID   uint
}

// Walk calls fn for every review and reply in the forest, parents before children.
func Walk(forest []*ReviewNode, fn func(*Node)) {
	for _, review := range forest {
		fn(&review.Node)
		walkReplies(review.Replies, fn)
	}
}

func walkReplies(replies []*ReplyNode, fn func(*Node)) {
	for _, reply := range replies {
		fn(&reply.Node)
		walkReplies(reply.Replies, fn)
	}
}

// ApplyViewerVotes marks each node with the viewer's own vote. Nodes are never filtered.
func ApplyViewerVotes(forest []*ReviewNode, votes map[Target]models.VoteValue) {
	if len(votes) == 0 {
		return
	}
	for _, review := range forest {
		review.ViewerVote = votes[Target{Type: models.TargetReview, ID: review.ID}]
		applyReplyVotes(review.Replies, votes)
	}
}

func applyReplyVotes(replies []*ReplyNode, votes map[Target]models.VoteValue) {
	for _, reply := range replies {
		reply.ViewerVote = votes[Target{Type: models.TargetReply, ID: reply.ID}]
		applyReplyVotes(reply.Replies, votes)
	}
}
