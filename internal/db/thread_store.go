package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"questlog/internal/apperr"
	"questlog/internal/models"
	"questlog/internal/thread"
)

const voteTotals = `COALESCE(SUM(CASE WHEN v.vote = 'upvote' THEN 1 ELSE 0 END), 0) AS upvote_count,
	COALESCE(SUM(CASE WHEN v.vote = 'downvote' THEN 1 ELSE 0 END), 0) AS downvote_count`

// FetchReviewRows returns every review of the game, deleted ones included, with author info,
// the author's list rating and vote totals.
func (s *Store) FetchReviewRows(ctx context.Context, gameID uint) ([]thread.ReviewRow, error) {
	var rows []thread.ReviewRow
	err := s.db.WithContext(ctx).
		Table("reviews AS r").
		Select(`r.id, r.user_id, r.game_id, r.review_text AS text, r.created_at, r.updated_at, r.deleted_at,
			u.username AS author_username, u.profile_pic_url AS author_avatar_url,
			ug.rating AS rating_snapshot, `+voteTotals).
		Joins("JOIN users u ON u.id = r.user_id").
		Joins("LEFT JOIN user_games ug ON ug.user_id = r.user_id AND ug.game_id = r.game_id").
		Joins("LEFT JOIN votes v ON v.target_type = ? AND v.target_id = r.id", models.TargetReview).
		Where("r.game_id = ?", gameID).
		Group("r.id, u.username, u.profile_pic_url, ug.rating").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch review rows for game %d: %w", gameID, err)
	}
	return rows, nil
}

// FetchReplyRows returns every reply of the game with author info and vote totals.
func (s *Store) FetchReplyRows(ctx context.Context, gameID uint) ([]thread.ReplyRow, error) {
	var rows []thread.ReplyRow
	err := s.db.WithContext(ctx).
		Table("review_replies AS rr").
		Select(`rr.id, rr.review_id, rr.parent_id AS parent_reply_id, rr.user_id, rr.game_id,
			rr.reply_text AS text, rr.created_at, rr.updated_at, rr.deleted_at,
			u.username AS author_username, u.profile_pic_url AS author_avatar_url, `+voteTotals).
		Joins("JOIN users u ON u.id = rr.user_id").
		Joins("LEFT JOIN votes v ON v.target_type = ? AND v.target_id = rr.id", models.TargetReply).
		Where("rr.game_id = ?", gameID).
		Group("rr.id, u.username, u.profile_pic_url").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch reply rows for game %d: %w", gameID, err)
	}
	return rows, nil
}

// ViewerVotes returns the user's votes on the reviews and replies of one game.
func (s *Store) ViewerVotes(ctx context.Context, gameID, userID uint) (map[thread.Target]models.VoteValue, error) {
	var votes []models.Vote
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where(
			s.db.Where("target_type = ? AND target_id IN (?)", models.TargetReview,
				s.db.Model(&models.Review{}).Select("id").Where("game_id = ?", gameID)).
				Or("target_type = ? AND target_id IN (?)", models.TargetReply,
					s.db.Model(&models.Reply{}).Select("id").Where("game_id = ?", gameID)),
		).
		Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("fetch viewer votes: %w", err)
	}

	out := make(map[thread.Target]models.VoteValue, len(votes))
	for _, v := range votes {
		out[thread.Target{Type: v.TargetType, ID: v.TargetID}] = v.Value
	}
	return out, nil
}

// ActiveReview returns the user's non-deleted review of the game, or nil when there is none.
func (s *Store) ActiveReview(ctx context.Context, userID, gameID uint) (*models.Review, error) {
	var review models.Review
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND game_id = ? AND deleted_at IS NULL", userID, gameID).
		Take(&review).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active review: %w", err)
	}
	return &review, nil
}

// GetReview loads a review whether or not it was deleted.
func (s *Store) GetReview(ctx context.Context, id uint) (*models.Review, error) {
	var review models.Review
	if err := s.db.WithContext(ctx).First(&review, id).Error; err != nil {
		return nil, notFound(err, "review", id)
	}
	return &review, nil
}

// GetReply loads a reply whether or not it was deleted.
func (s *Store) GetReply(ctx context.Context, id uint) (*models.Reply, error) {
	var reply models.Reply
	if err := s.db.WithContext(ctx).First(&reply, id).Error; err != nil {
		return nil, notFound(err, "reply", id)
	}
	return &reply, nil
}

// CreateReview inserts the review. A concurrent second active review trips the partial unique index.
func (s *Store) CreateReview(ctx context.Context, review *models.Review) error {
	if err := s.db.WithContext(ctx).Create(review).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("create review: %w", apperr.ErrConflict)
		}
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (s *Store) CreateReply(ctx context.Context, reply *models.Reply) error {
	if err := s.db.WithContext(ctx).Create(reply).Error; err != nil {
		return fmt.Errorf("create reply: %w", err)
	}
	return nil
}

func (s *Store) UpdateReviewText(ctx context.Context, id uint, text string) error {
	return s.updateLive(ctx, &models.Review{}, "review", id, map[string]any{"review_text": text}, true)
}

func (s *Store) UpdateReplyText(ctx context.Context, id uint, text string) error {
	return s.updateLive(ctx, &models.Reply{}, "reply", id, map[string]any{"reply_text": text}, true)
}

func (s *Store) SoftDeleteReview(ctx context.Context, id uint, at time.Time) error {
	return s.updateLive(ctx, &models.Review{}, "review", id, map[string]any{"deleted_at": at}, false)
}

func (s *Store) SoftDeleteReply(ctx context.Context, id uint, at time.Time) error {
	return s.updateLive(ctx, &models.Reply{}, "reply", id, map[string]any{"deleted_at": at}, false)
}

// updateLive 只更新未删除的行，并发删除时返回 NotFound
// touch 为 false 时不刷新 updated_at
func (s *Store) updateLive(ctx context.Context, model any, what string, id uint, values map[string]any, touch bool) error {
	q := s.db.WithContext(ctx).Model(model).Where("id = ? AND deleted_at IS NULL", id)
	var res *gorm.DB
	if touch {
		res = q.Updates(values)
	} else {
		res = q.UpdateColumns(values)
	}
	if res.Error != nil {
		return fmt.Errorf("update %s %d: %w", what, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %d: %w", what, id, apperr.ErrNotFound)
	}
	return nil
}

// SetVote stores the user's vote on target and returns the value it replaced.
// VoteNone removes the row.
func (s *Store) SetVote(ctx context.Context, userID uint, target thread.Target, value models.VoteValue) (models.VoteValue, error) {
	previous := models.VoteNone
	byTarget := func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? AND target_type = ? AND target_id = ?", userID, target.Type, target.ID)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Vote
		err := tx.Scopes(byTarget).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&existing).Error
		switch {
		case err == nil:
			previous = existing.Value
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		if value == models.VoteNone {
			return tx.Scopes(byTarget).Delete(&models.Vote{}).Error
		}

		vote := models.Vote{UserID: userID, TargetType: target.Type, TargetID: target.ID, Value: value}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "target_type"}, {Name: "target_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vote", "updated_at"}),
		}).Create(&vote).Error
	})
	if err != nil {
		return models.VoteNone, fmt.Errorf("set vote: %w", err)
	}
	return previous, nil
}
