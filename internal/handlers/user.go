package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"questlog/internal/models"
)

type UserAPI interface {
	Search(ctx context.Context, term string) ([]models.User, error)
}

// UserHandler 用户公开信息
type UserHandler struct {
	users UserAPI
}

func NewUserHandler(users UserAPI) *UserHandler {
	return &UserHandler{users: users}
}

// Search lists users whose username starts with ?term=, at most 50.
func (h *UserHandler) Search(c *gin.Context) {
	users, err := h.users.Search(c.Request.Context(), c.Query("term"))
	if err != nil {
		respondError(c, err)
		return
	}
	rows := make([]userResponse, 0, len(users))
	for i := range users {
		rows = append(rows, toUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}
