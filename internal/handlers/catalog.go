package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"questlog/internal/apperr"
	"questlog/internal/services"
)

type CatalogAPI interface {
	Search(ctx context.Context, term string, offset int) (*services.SearchResult, error)
	Game(ctx context.Context, id uint) (*services.Game, error)
	NewReleases(ctx context.Context, limit, offset int) ([]services.Game, error)
	Browse(ctx context.Context, q services.BrowseQuery) ([]services.Game, error)
	Genres(ctx context.Context) ([]services.Named, error)
}

// CatalogHandler 代理 IGDB 查询，未配置凭据时 catalog 为 nil，接口返回 503
type CatalogHandler struct {
	catalog CatalogAPI
}

func NewCatalogHandler(catalog CatalogAPI) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

type searchBody struct {
	Search string `json:"search" binding:"required"`
	Offset int    `json:"offset"`
}

func (h *CatalogHandler) available(c *gin.Context) bool {
	if h.catalog == nil {
		respondError(c, apperr.Unavailable("game catalog is not configured"))
		return false
	}
	return true
}

func (h *CatalogHandler) Search(c *gin.Context) {
	if !h.available(c) {
		return
	}
	var body searchBody
	if !bindJSON(c, &body) {
		return
	}
	result, err := h.catalog.Search(c.Request.Context(), body.Search, body.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CatalogHandler) Game(c *gin.Context) {
	if !h.available(c) {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	game, err := h.catalog.Game(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, game)
}

func (h *CatalogHandler) NewReleases(c *gin.Context) {
	if !h.available(c) {
		return
	}
	games, err := h.catalog.NewReleases(c.Request.Context(), queryInt(c, "limit", 10), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

// Browse lists games, optionally filtered by ?genre= (genre, theme or game mode name) and ?ids=1,2.
func (h *CatalogHandler) Browse(c *gin.Context) {
	if !h.available(c) {
		return
	}
	ids, ok := queryIDs(c, "ids")
	if !ok {
		return
	}
	games, err := h.catalog.Browse(c.Request.Context(), services.BrowseQuery{
		Genre:  c.Query("genre"),
		IDs:    ids,
		Limit:  queryInt(c, "limit", 10),
		Offset: queryInt(c, "offset", 0),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (h *CatalogHandler) Genres(c *gin.Context) {
	if !h.available(c) {
		return
	}
	genres, err := h.catalog.Genres(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, genres)
}
