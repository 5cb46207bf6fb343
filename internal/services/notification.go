package services

import (
	"context"

	"questlog/internal/apperr"
	"questlog/internal/models"
)

// NotificationLimit 默认返回的最新通知条数
const NotificationLimit = 10

type NotificationStore interface {
	ListNotifications(ctx context.Context, userID uint, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID uint) (int64, error)
	MarkNotificationRead(ctx context.Context, userID, id uint) error
	MarkAllNotificationsRead(ctx context.Context, userID uint) error
	DeleteNotification(ctx context.Context, userID, id uint) error
}

type NotificationService struct {
	store NotificationStore
}

func NewNotificationService(store NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// NotificationPage is the latest notifications plus the total number of unread ones.
type NotificationPage struct {
	Rows        []models.Notification `json:"rows"`
	UnreadCount int64                 `json:"unreadCount"`
}

// List returns the newest NotificationLimit notifications, or all of them when all is set.
func (s *NotificationService) List(ctx context.Context, userID uint, all bool) (*NotificationPage, error) {
	limit := NotificationLimit
	if all {
		limit = 0
	}
	rows, err := s.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if rows == nil {
		rows = []models.Notification{}
	}
	return &NotificationPage{Rows: rows, UnreadCount: unread}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	n, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	if err := s.store.MarkNotificationRead(ctx, userID, id); err != nil {
		return storeError(err, "notification", id)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) error {
	if err := s.store.MarkAllNotificationsRead(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Dismiss deletes the notification. A dismissed upvote notification may be sent again later.
func (s *NotificationService) Dismiss(ctx context.Context, userID, id uint) error {
	if err := s.store.DeleteNotification(ctx, userID, id); err != nil {
		return storeError(err, "notification", id)
	}
	return nil
}
