package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"questlog/internal/services"
)

type NotificationAPI interface {
	List(ctx context.Context, userID uint, all bool) (*services.NotificationPage, error)
	UnreadCount(ctx context.Context, userID uint) (int64, error)
	MarkRead(ctx context.Context, userID, id uint) error
	MarkAllRead(ctx context.Context, userID uint) error
	Dismiss(ctx context.Context, userID, id uint) error
}

type NotificationHandler struct {
	notifications NotificationAPI
}

func NewNotificationHandler(notifications NotificationAPI) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List 默认返回最近 10 条，?all=true 返回全部
func (h *NotificationHandler) List(c *gin.Context) {
	page, err := h.notifications.List(c.Request.Context(), currentUserID(c), c.Query("all") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

func (h *NotificationHandler) Read(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) ReadAll(c *gin.Context) {
	if err := h.notifications.MarkAllRead(c.Request.Context(), currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.Dismiss(c.Request.Context(), currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
