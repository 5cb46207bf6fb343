package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"questlog/internal/apperr"
	"questlog/internal/metrics"
	"questlog/internal/models"
	"questlog/internal/thread"
	"questlog/internal/utils"
	"questlog/internal/validator"
)

// ReviewStore is the persistence the review service needs. Lookups of missing rows return an
// error wrapping apperr.ErrNotFound.
type ReviewStore interface {
	FetchReviewRows(ctx context.Context, gameID uint) ([]thread.ReviewRow, error)
	FetchReplyRows(ctx context.Context, gameID uint) ([]thread.ReplyRow, error)
	ViewerVotes(ctx context.Context, gameID, userID uint) (map[thread.Target]models.VoteValue, error)

	ActiveReview(ctx context.Context, userID, gameID uint) (*models.Review, error)
	GetReview(ctx context.Context, id uint) (*models.Review, error)
	GetReply(ctx context.Context, id uint) (*models.Reply, error)
	CreateReview(ctx context.Context, review *models.Review) error
	CreateReply(ctx context.Context, reply *models.Reply) error
	UpdateReviewText(ctx context.Context, id uint, text string) error
	UpdateReplyText(ctx context.Context, id uint, text string) error
	SoftDeleteReview(ctx context.Context, id uint, at time.Time) error
	SoftDeleteReply(ctx context.Context, id uint, at time.Time) error
	SetVote(ctx context.Context, userID uint, target thread.Target, value models.VoteValue) (models.VoteValue, error)

	GetUser(ctx context.Context, id uint) (*models.User, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateNotificationOnce(ctx context.Context, n *models.Notification) (bool, error)
}

type CreateReviewInput struct {
	ActorID uint   `validate:"required"`
	GameID  uint   `validate:"required"`
	Text    string `validate:"notblank,max=10000"`
}

type EditInput struct {
	ActorID uint   `validate:"required"`
	ID      uint   `validate:"required"`
	Text    string `validate:"notblank,max=10000"`
}

type CreateReplyInput struct {
	ActorID       uint   `validate:"required"`
	ReviewID      uint   `validate:"required"`
	ParentReplyID *uint  `validate:"omitempty,gt=0"`
	Text          string `validate:"notblank,max=10000"`
}

type VoteInput struct {
	ActorID    uint              `validate:"required"`
	TargetType models.TargetType `validate:"oneof=review reply"`
	TargetID   uint              `validate:"required"`
	Value      models.VoteValue  `validate:"oneof=upvote downvote none"`
}

// ReviewService 评测、回复与投票的业务逻辑
type ReviewService struct {
	store    ReviewStore
	cache    *utils.GlobalCache
	cacheTTL time.Duration
	log      *zap.Logger
	now      func() time.Time

	// fetches 合并同一游戏同一版本的并发读取
	fetches singleflight.Group
	// mu 保护 generations，并让 invalidate 与缓存写入互斥
	mu          sync.Mutex
	generations map[uint]uint64
}

func NewReviewService(store ReviewStore, cache *utils.GlobalCache, cacheTTL time.Duration, log *zap.Logger) *ReviewService {
	return &ReviewService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log.Named("reviews"),
		now:      func() time.Time { return time.Now().UTC() },

		generations: map[uint]uint64{},
	}
}

// threadRows 单个游戏的评论行快照，缓存后只读
type threadRows struct {
	reviews []thread.ReviewRow
	replies []thread.ReplyRow
}

func threadCacheKey(gameID uint) string {
	return fmt.Sprintf("thread:rows:%d", gameID)
}

func gameLink(gameID uint) string {
	return fmt.Sprintf("/game?id=%d", gameID)
}

func (s *ReviewService) generation(gameID uint) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[gameID]
}

// loadRows 读取游戏的评论行快照。
// 读取期间若发生写操作 (generation 变化)，结果只返回给本次调用，不写入缓存。
func (s *ReviewService) loadRows(ctx context.Context, gameID uint) (threadRows, error) {
	key := threadCacheKey(gameID)
	if cached, ok := s.cache.Get(key).(threadRows); ok {
		metrics.ThreadCache.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.ThreadCache.WithLabelValues("miss").Inc()

	gen := s.generation(gameID)
	// 写操作之后的读取不能复用写之前发起的查询
	flight := fmt.Sprintf("%s@%d", key, gen)
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := s.fetches.Do(flight, func() (any, error) {
		reviews, err := s.store.FetchReviewRows(fetchCtx, gameID)
		if err != nil {
			return threadRows{}, err
		}
		replies, err := s.store.FetchReplyRows(fetchCtx, gameID)
		if err != nil {
			return threadRows{}, err
		}
		rows := threadRows{reviews: reviews, replies: replies}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generations[gameID] == gen {
			s.cache.Set(key, rows, s.cacheTTL)
		}
		return rows, nil
	})
	if err != nil {
		return threadRows{}, err
	}
	return v.(threadRows), nil
}

// InvalidateThread drops the cached rows of a game. Callers invoke it after committing a change
// that alters what the thread shows, including the author's rating on their game list.
func (s *ReviewService) InvalidateThread(gameID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[gameID]++
	s.cache.Delete(threadCacheKey(gameID))
}

// GetThread assembles the review forest of a game. viewerID 0 means anonymous; otherwise each node
// carries the viewer's own vote.
func (s *ReviewService) GetThread(ctx context.Context, gameID, viewerID uint) ([]*thread.ReviewNode, error) {
	rows, err := s.loadRows(ctx, gameID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	forest, anomalies := thread.Assemble(rows.reviews, rows.replies)
	for _, a := range anomalies {
		metrics.ThreadAnomalies.WithLabelValues(string(a.Kind)).Inc()
		s.log.Warn("Thread row could not be placed as stored",
			zap.Uint("game_id", gameID),
			zap.String("kind", string(a.Kind)),
			zap.Uint("review_id", a.ReviewID),
			zap.Uint("reply_id", a.ReplyID),
			zap.Uint("parent_id", a.ParentID),
		)
	}

	if viewerID != 0 {
		votes, err := s.store.ViewerVotes(ctx, gameID, viewerID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		thread.ApplyViewerVotes(forest, votes)
	}

	thread.Walk(forest, func(n *thread.Node) {
		if !n.Deleted() {
			n.DisplayHTML = utils.RenderMarkdown(n.DisplayText)
		}
	})
	return forest, nil
}

// ActiveReview returns the user's live review of the game, or nil.
func (s *ReviewService) ActiveReview(ctx context.Context, userID, gameID uint) (*models.Review, error) {
	review, err := s.store.ActiveReview(ctx, userID, gameID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return review, nil
}

func (s *ReviewService) CreateReview(ctx context.Context, in CreateReviewInput) (review *models.Review, err error) {
	defer func() { observeMutation("create_review", err) }()

	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	existing, err := s.store.ActiveReview(ctx, in.ActorID, in.GameID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if existing != nil {
		return nil, errDuplicateReview()
	}

	review = &models.Review{UserID: in.ActorID, GameID: in.GameID, Text: in.Text}
	if err := s.store.CreateReview(ctx, review); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, errDuplicateReview()
		}
		return nil, apperr.Internal(err)
	}
	s.InvalidateThread(in.GameID)
	return review, nil
}

func errDuplicateReview() error {
	return apperr.Conflict("you already have a review for this game")
}

func (s *ReviewService) EditReview(ctx context.Context, in EditInput) (review *models.Review, err error) {
	defer func() { observeMutation("edit_review", err) }()

	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	review, err = s.liveReviewOwnedBy(ctx, in.ID, in.ActorID, "edit")
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateReviewText(ctx, review.ID, in.Text); err != nil {
		return nil, storeError(err, "review", review.ID)
	}
	s.InvalidateThread(review.GameID)

	review.Text = in.Text
	review.UpdatedAt = s.now()
	return review, nil
}

func (s *ReviewService) DeleteReview(ctx context.Context, actorID, reviewID uint) (err error) {
	defer func() { observeMutation("delete_review", err) }()

	review, err := s.liveReviewOwnedBy(ctx, reviewID, actorID, "delete")
	if err != nil {
		return err
	}
	if err := s.store.SoftDeleteReview(ctx, review.ID, s.now()); err != nil {
		return storeError(err, "review", review.ID)
	}
	s.InvalidateThread(review.GameID)
	return nil
}

func (s *ReviewService) liveReviewOwnedBy(ctx context.Context, reviewID, actorID uint, action string) (*models.Review, error) {
	review, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, storeError(err, "review", reviewID)
	}
	if review.IsDeleted() {
		return nil, apperr.NotFound("review", reviewID)
	}
	if review.UserID != actorID {
		return nil, apperr.Forbidden(fmt.Sprintf("you can only %s your own review", action))
	}
	return review, nil
}

// CreateReply adds a reply under a review, or under another reply of the same review. Deleted
// reviews and deleted parents still accept replies.
func (s *ReviewService) CreateReply(ctx context.Context, in CreateReplyInput) (reply *models.Reply, err error) {
	defer func() { observeMutation("create_reply", err) }()

	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	review, err := s.store.GetReview(ctx, in.ReviewID)
	if err != nil {
		return nil, storeError(err, "review", in.ReviewID)
	}

	// 通知直接被回复的人：父回复作者，否则评测作者
	recipient, noun := review.UserID, "review"
	if in.ParentReplyID != nil {
		parent, err := s.store.GetReply(ctx, *in.ParentReplyID)
		if err != nil {
			return nil, storeError(err, "reply", *in.ParentReplyID)
		}
		if parent.ReviewID != review.ID {
			return nil, apperr.InvalidParent("parent reply belongs to a different review")
		}
		recipient, noun = parent.UserID, "comment"
	}

	reply = &models.Reply{
		ReviewID: review.ID,
		ParentID: in.ParentReplyID,
		UserID:   in.ActorID,
		GameID:   review.GameID,
		Text:     in.Text,
	}
	if err := s.store.CreateReply(ctx, reply); err != nil {
		return nil, apperr.Internal(err)
	}
	s.InvalidateThread(review.GameID)

	if recipient != in.ActorID {
		s.notify(ctx, &models.Notification{
			UserID:     recipient,
			ActorID:    &in.ActorID,
			Type:       models.NotificationTypeReply,
			Message:    fmt.Sprintf("%s replied to your %s", s.actorName(ctx, in.ActorID), noun),
			Link:       gameLink(review.GameID),
			TargetType: models.TargetReply,
			TargetID:   reply.ID,
		}, false)
	}
	return reply, nil
}

func (s *ReviewService) EditReply(ctx context.Context, in EditInput) (reply *models.Reply, err error) {
	defer func() { observeMutation("edit_reply", err) }()

	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	reply, err = s.liveReplyOwnedBy(ctx, in.ID, in.ActorID, "edit")
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateReplyText(ctx, reply.ID, in.Text); err != nil {
		return nil, storeError(err, "reply", reply.ID)
	}
	s.InvalidateThread(reply.GameID)

	reply.Text = in.Text
	reply.UpdatedAt = s.now()
	return reply, nil
}

func (s *ReviewService) DeleteReply(ctx context.Context, actorID, replyID uint) (err error) {
	defer func() { observeMutation("delete_reply", err) }()

	reply, err := s.liveReplyOwnedBy(ctx, replyID, actorID, "delete")
	if err != nil {
		return err
	}
	if err := s.store.SoftDeleteReply(ctx, reply.ID, s.now()); err != nil {
		return storeError(err, "reply", reply.ID)
	}
	s.InvalidateThread(reply.GameID)
	return nil
}

func (s *ReviewService) liveReplyOwnedBy(ctx context.Context, replyID, actorID uint, action string) (*models.Reply, error) {
	reply, err := s.store.GetReply(ctx, replyID)
	if err != nil {
		return nil, storeError(err, "reply", replyID)
	}
	if reply.IsDeleted() {
		return nil, apperr.NotFound("reply", replyID)
	}
	if reply.UserID != actorID {
		return nil, apperr.Forbidden(fmt.Sprintf("you can only %s your own reply", action))
	}
	return reply, nil
}

// Vote sets, changes or clears the actor's vote. The first upvote on someone else's content
// notifies its author once per actor and target.
func (s *ReviewService) Vote(ctx context.Context, in VoteInput) (err error) {
	defer func() { observeMutation("vote", err) }()

	if err := validator.Validate(in); err != nil {
		return err
	}

	var ownerID, gameID uint
	noun := "review"
	switch in.TargetType {
	case models.TargetReview:
		review, err := s.store.GetReview(ctx, in.TargetID)
		if err != nil {
			return storeError(err, "review", in.TargetID)
		}
		ownerID, gameID = review.UserID, review.GameID
	case models.TargetReply:
		reply, err := s.store.GetReply(ctx, in.TargetID)
		if err != nil {
			return storeError(err, "reply", in.TargetID)
		}
		ownerID, gameID, noun = reply.UserID, reply.GameID, "comment"
	}

	target := thread.Target{Type: in.TargetType, ID: in.TargetID}
	previous, err := s.store.SetVote(ctx, in.ActorID, target, in.Value)
	if err != nil {
		return apperr.Internal(err)
	}
	s.InvalidateThread(gameID)

	if in.Value == models.VoteUpvote && previous == models.VoteNone && ownerID != in.ActorID {
		s.notify(ctx, &models.Notification{
			UserID:     ownerID,
			ActorID:    &in.ActorID,
			Type:       models.NotificationTypeUpvote,
			Message:    fmt.Sprintf("%s upvoted your %s", s.actorName(ctx, in.ActorID), noun),
			Link:       gameLink(gameID),
			TargetType: in.TargetType,
			TargetID:   in.TargetID,
		}, true)
	}
	return nil
}

// notify 通知失败不影响主流程，只记录日志
func (s *ReviewService) notify(ctx context.Context, n *models.Notification, once bool) {
	var err error
	if once {
		_, err = s.store.CreateNotificationOnce(ctx, n)
	} else {
		err = s.store.CreateNotification(ctx, n)
	}
	if err != nil {
		s.log.Error("Failed to create notification",
			zap.Uint("user_id", n.UserID),
			zap.String("type", string(n.Type)),
			zap.Error(err),
		)
	}
}

func (s *ReviewService) actorName(ctx context.Context, actorID uint) string {
	user, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		s.log.Warn("Failed to load notification actor", zap.Uint("user_id", actorID), zap.Error(err))
		return "Someone"
	}
	return user.Username
}

// storeError keeps not-found errors typed and hides everything else.
func storeError(err error, resource string, id uint) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound(resource, id)
	}
	return apperr.Internal(err)
}

func observeMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = apperr.From(err).Code
	}
	metrics.Mutations.WithLabelValues(op, result).Inc()
}
