package handlers

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"questlog/internal/apperr"
	"questlog/internal/middleware"
	"questlog/internal/models"
	"questlog/internal/services"
	"questlog/internal/utils"
)

type AuthAPI interface {
	Signup(ctx context.Context, in services.SignupInput) (*models.User, error)
	Login(ctx context.Context, in services.LoginInput) (*models.User, error)
}

type AuthHandler struct {
	users AuthAPI
}

func NewAuthHandler(users AuthAPI) *AuthHandler {
	return &AuthHandler{users: users}
}

type userResponse struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"profile_pic_url"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, AvatarURL: utils.AvatarOrDefault(u.AvatarURL)}
}

// Register 注册成功后直接登录
func (h *AuthHandler) Register(c *gin.Context) {
	var in services.SignupInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.users.Signup(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := startSession(c, user.ID); err != nil {
		respondError(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var in services.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.users.Login(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := startSession(c, user.ID); err != nil {
		respondError(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = session.Save()
	c.Status(http.StatusNoContent)
}

// Me returns the logged in user, or {"user": null} for anonymous callers.
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(user)})
}

func startSession(c *gin.Context, userID uint) error {
	session := sessions.Default(c)
	session.Clear()
	session.Set(middleware.SessionUserKey, userID)
	return session.Save()
}
