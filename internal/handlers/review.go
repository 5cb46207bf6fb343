package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"questlog/internal/models"
	"questlog/internal/services"
	"questlog/internal/thread"
)

// ReviewAPI is the part of services.ReviewService the HTTP layer needs.
type ReviewAPI interface {
	GetThread(ctx context.Context, gameID, viewerID uint) ([]*thread.ReviewNode, error)
	ActiveReview(ctx context.Context, userID, gameID uint) (*models.Review, error)
	CreateReview(ctx context.Context, in services.CreateReviewInput) (*models.Review, error)
	EditReview(ctx context.Context, in services.EditInput) (*models.Review, error)
	DeleteReview(ctx context.Context, actorID, reviewID uint) error
	CreateReply(ctx context.Context, in services.CreateReplyInput) (*models.Reply, error)
	EditReply(ctx context.Context, in services.EditInput) (*models.Reply, error)
	DeleteReply(ctx context.Context, actorID, replyID uint) error
	Vote(ctx context.Context, in services.VoteInput) error
}

type ReviewHandler struct {
	reviews ReviewAPI
}

func NewReviewHandler(reviews ReviewAPI) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

type reviewBody struct {
	ReviewText string `json:"review_text"`
}

type replyBody struct {
	ReplyText     string `json:"reply_text"`
	ParentReplyID *uint  `json:"parent_reply_id"`
}

type voteBody struct {
	Vote models.VoteValue `json:"vote" binding:"required"`
}

// Thread returns the assembled review forest of a game as a bare JSON array. Anonymous callers get
// no viewer votes.
func (h *ReviewHandler) Thread(c *gin.Context) {
	gameID, ok := paramID(c, "gameId")
	if !ok {
		return
	}
	forest, err := h.reviews.GetThread(c.Request.Context(), gameID, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, forest)
}

// Mine returns the caller's active review of the game, or null.
func (h *ReviewHandler) Mine(c *gin.Context) {
	gameID, ok := paramID(c, "gameId")
	if !ok {
		return
	}
	review, err := h.reviews.ActiveReview(c.Request.Context(), currentUserID(c), gameID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"review": review})
}

func (h *ReviewHandler) Create(c *gin.Context) {
	gameID, ok := paramID(c, "gameId")
	if !ok {
		return
	}
	var body reviewBody
	if !bindJSON(c, &body) {
		return
	}

	review, err := h.reviews.CreateReview(c.Request.Context(), services.CreateReviewInput{
		ActorID: currentUserID(c),
		GameID:  gameID,
		Text:    body.ReviewText,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *ReviewHandler) Edit(c *gin.Context) {
	id, ok := paramID(c, "reviewId")
	if !ok {
		return
	}
	var body reviewBody
	if !bindJSON(c, &body) {
		return
	}

	review, err := h.reviews.EditReview(c.Request.Context(), services.EditInput{
		ActorID: currentUserID(c),
		ID:      id,
		Text:    body.ReviewText,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *ReviewHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "reviewId")
	if !ok {
		return
	}
	if err := h.reviews.DeleteReview(c.Request.Context(), currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ReviewHandler) Reply(c *gin.Context) {
	reviewID, ok := paramID(c, "reviewId")
	if !ok {
		return
	}
	var body replyBody
	if !bindJSON(c, &body) {
		return
	}

	reply, err := h.reviews.CreateReply(c.Request.Context(), services.CreateReplyInput{
		ActorID:       currentUserID(c),
		ReviewID:      reviewID,
		ParentReplyID: body.ParentReplyID,
		Text:          body.ReplyText,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reply)
}

func (h *ReviewHandler) EditReply(c *gin.Context) {
	id, ok := paramID(c, "replyId")
	if !ok {
		return
	}
	var body replyBody
	if !bindJSON(c, &body) {
		return
	}

	reply, err := h.reviews.EditReply(c.Request.Context(), services.EditInput{
		ActorID: currentUserID(c),
		ID:      id,
		Text:    body.ReplyText,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *ReviewHandler) DeleteReply(c *gin.Context) {
	id, ok := paramID(c, "replyId")
	if !ok {
		return
	}
	if err := h.reviews.DeleteReply(c.Request.Context(), currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ReviewHandler) VoteReview(c *gin.Context) {
	h.vote(c, models.TargetReview, "reviewId")
}

func (h *ReviewHandler) VoteReply(c *gin.Context) {
	h.vote(c, models.TargetReply, "replyId")
}

func (h *ReviewHandler) vote(c *gin.Context, target models.TargetType, param string) {
	id, ok := paramID(c, param)
	if !ok {
		return
	}
	var body voteBody
	if !bindJSON(c, &body) {
		return
	}

	err := h.reviews.Vote(c.Request.Context(), services.VoteInput{
		ActorID:    currentUserID(c),
		TargetType: target,
		TargetID:   id,
		Value:      body.Vote,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"target_type": target, "target_id": id, "vote": body.Vote})
}
