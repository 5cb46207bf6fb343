package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"questlog/internal/apperr"
	"questlog/internal/middleware"
	"questlog/internal/utils"
)

// respondError writes {"error": {"code", "message"}} with the status of err.
// 5xx 的原始错误挂到 gin 上下文，由请求日志统一输出
func respondError(c *gin.Context, err error) {
	appErr := apperr.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(appErr.Status, gin.H{"error": appErr})
}

// bindJSON decodes the body and answers 400 on failure.
func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondError(c, apperr.InvalidInput("invalid request body"))
		return false
	}
	return true
}

// paramID reads a positive numeric path parameter.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		respondError(c, apperr.InvalidInput("invalid "+name))
	}
	return id, ok
}

// currentUserID 未登录返回 0
func currentUserID(c *gin.Context) uint {
	if user := middleware.CurrentUser(c); user != nil {
		return user.ID
	}
	return 0
}

// queryInt reads a non-negative integer query parameter, falling back to def.
func queryInt(c *gin.Context, name string, def int) int {
	raw, ok := c.GetQuery(name)
	if !ok {
		return def
	}
	if n := utils.StringToInt(raw); n > 0 {
		return n
	}
	return def
}

// queryIDs reads a comma separated list of ids such as ?ids=1,2,3. A missing parameter yields nil.
func queryIDs(c *gin.Context, name string) ([]uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		id, ok := utils.ParseID(strings.TrimSpace(part))
		if !ok {
			respondError(c, apperr.InvalidInput(name+" must be a comma separated list of game ids"))
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
