package middleware

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"questlog/internal/apperr"
	"questlog/internal/models"
)

const CheckUserKey = "user"

// SessionUserKey 会话中保存登录用户 ID 的键
const SessionUserKey = "user_id"

// UserLookup loads the user behind a session.
type UserLookup interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
}

// AuthRequired rejects requests without a loaded user. LoadUser must run first.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(CheckUserKey); !exists {
			AbortWithError(c, apperr.Unauthorized("you must be logged in"))
			return
		}
		c.Next()
	}
}

// LoadUser retrieves the user from the session and sets it on the context.
// A session pointing at a deleted user is cleared.
func LoadUser(users UserLookup, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, ok := session.Get(SessionUserKey).(uint)
		if !ok || id == 0 {
			c.Next()
			return
		}

		user, err := users.GetUser(c.Request.Context(), id)
		switch {
		case err == nil:
			c.Set(CheckUserKey, user)
		case apperr.HTTPStatus(err) == http.StatusNotFound:
			session.Delete(SessionUserKey)
			_ = session.Save()
		default:
			log.Warn("Failed to load session user", zap.Uint("user_id", id), zap.Error(err))
		}
		c.Next()
	}
}

// CurrentUser returns the logged in user, or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(CheckUserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// AbortWithError writes the error envelope and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	appErr := apperr.From(err)
	c.AbortWithStatusJSON(appErr.Status, gin.H{"error": appErr})
}
