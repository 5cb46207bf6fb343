package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"questlog/internal/models"
)

type GameListAPI interface {
	Save(ctx context.Context, userID, gameID uint, patch models.UserGamePatch) error
	ToggleFavorite(ctx context.Context, userID, gameID uint) error
	Mine(ctx context.Context, userID uint, favoritesOnly bool, gameIDs []uint) ([]models.UserGame, error)
	ByUsername(ctx context.Context, username string, favoritesOnly bool) ([]models.UserGame, error)
	Current(ctx context.Context, userID, gameID uint) (*models.UserGame, error)
}

type GameListHandler struct {
	list GameListAPI
}

func NewGameListHandler(list GameListAPI) *GameListHandler {
	return &GameListHandler{list: list}
}

// Mine lists the caller's games. ?favorites=true keeps favorites only, ?ids=1,2,3 restricts to
// the given games.
func (h *GameListHandler) Mine(c *gin.Context) {
	ids, ok := queryIDs(c, "ids")
	if !ok {
		return
	}

	list, err := h.list.Mine(c.Request.Context(), currentUserID(c), c.Query("favorites") == "true", ids)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": list})
}

func (h *GameListHandler) ByUsername(c *gin.Context) {
	list, err := h.list.ByUsername(c.Request.Context(), c.Param("username"), c.Query("favorites") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": list})
}

// Current returns the caller's entry for a game; entry is null when the game is not on the list.
func (h *GameListHandler) Current(c *gin.Context) {
	gameID, ok := paramID(c, "gameId")
	if !ok {
		return
	}
	entry, err := h.list.Current(c.Request.Context(), currentUserID(c), gameID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

func (h *GameListHandler) Save(c *gin.Context) {
	gameID, ok := paramID(c, "gameId")
	if !ok {
		return
	}
	var patch models.UserGamePatch
	if !bindJSON(c, &patch) {
		return
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)
	if err := h.list.Save(ctx, userID, gameID, patch); err != nil {
		respondError(c, err)
		return
	}
	entry, err := h.list.Current(ctx, userID, gameID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

func (h *GameListHandler) ToggleFavorite(c *gin.Context) {
	gameID, ok := paramID(c, "gameId")
	if !ok {
		return
	}
	if err := h.list.ToggleFavorite(c.Request.Context(), currentUserID(c), gameID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
