package db

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"questlog/internal/apperr"
	"questlog/internal/models"
)

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// CreateNotificationOnce inserts an upvote notification unless the same actor already has one
// for the same receiver and target. The partial unique index idx_notifications_upvote_once makes
// the check atomic. It reports whether a row was written.
func (s *Store) CreateNotificationOnce(ctx context.Context, n *models.Notification) (bool, error) {
	if n.Type != models.NotificationTypeUpvote {
		return false, fmt.Errorf("create notification once: type %q has no unique index", n.Type)
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(n)
	if res.Error != nil {
		return false, fmt.Errorf("create notification once: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListNotifications returns the newest notifications of the user. limit <= 0 returns all of them.
func (s *Store) ListNotifications(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	var list []models.Notification
	q := s.db.WithContext(ctx).
		Preload("Actor").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

func (s *Store) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead 只能标记自己的通知
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification %d read: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uint) error {
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func (s *Store) DeleteNotification(ctx context.Context, userID, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return fmt.Errorf("delete notification %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}
