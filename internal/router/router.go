package router

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"questlog/internal/handlers"
	"questlog/internal/middleware"
)

type Handlers struct {
	Auth          *handlers.AuthHandler
	Reviews       *handlers.ReviewHandler
	GameList      *handlers.GameListHandler
	Notifications *handlers.NotificationHandler
	Catalog       *handlers.CatalogHandler
	Users         *handlers.UserHandler
}

// RegisterRoutes mounts the JSON API. writeLimit guards every mutating route.
// Sessions and middleware.LoadUser must already be installed on r.
func RegisterRoutes(r *gin.Engine, h Handlers, writeLimit gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))

	// 认证 (Auth)
	auth := api.Group("/auth")
	{
		auth.POST("/signup", writeLimit, h.Auth.Register) // 注册并登录
		auth.POST("/login", writeLimit, h.Auth.Login)     // 登录
		auth.POST("/logout", h.Auth.Logout)               // 退出登录
		auth.GET("/me", h.Auth.Me)                        // 当前用户
	}

	// 游戏目录 (Catalog)
	games := api.Group("/games")
	{
		games.GET("", h.Catalog.Browse)          // 按类型浏览
		games.POST("/search", h.Catalog.Search)  // 搜索游戏
		games.GET("/new", h.Catalog.NewReleases) // 近期新作
		games.GET("/genres", h.Catalog.Genres)   // 类型、主题与模式
		games.GET("/:id", h.Catalog.Game)        // 游戏详情
	}

	// 用户 (Users)
	api.GET("/users/search", h.Users.Search) // 按用户名前缀搜索

	// 评测 (Reviews) 公开读取
	api.GET("/reviews/:gameId", h.Reviews.Thread) // 评测与回复树

	authorized := api.Group("")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.GET("/reviews/:gameId/user", h.Reviews.Mine)                             // 我对该游戏的评测
		authorized.POST("/reviews/:gameId", writeLimit, h.Reviews.Create)                   // 发表评测
		authorized.PUT("/reviews/review/:reviewId", writeLimit, h.Reviews.Edit)             // 编辑评测
		authorized.DELETE("/reviews/review/:reviewId", writeLimit, h.Reviews.Delete)        // 删除评测
		authorized.POST("/reviews/review/:reviewId/reply", writeLimit, h.Reviews.Reply)     // 回复评测或回复
		authorized.POST("/reviews/review/:reviewId/vote", writeLimit, h.Reviews.VoteReview) // 评测投票
		authorized.PUT("/replies/:replyId", writeLimit, h.Reviews.EditReply)                // 编辑回复
		authorized.DELETE("/replies/:replyId", writeLimit, h.Reviews.DeleteReply)           // 删除回复
		authorized.POST("/replies/:replyId/vote", writeLimit, h.Reviews.VoteReply)          // 回复投票

		authorized.GET("/list", h.GameList.Mine)                                         // 我的游戏清单
		authorized.GET("/list/game/:gameId", h.GameList.Current)                         // 某个游戏的清单条目
		authorized.POST("/list/:gameId", writeLimit, h.GameList.Save)                    // 加入或更新清单
		authorized.POST("/list/:gameId/favorite", writeLimit, h.GameList.ToggleFavorite) // 收藏/取消收藏

		authorized.GET("/notifications", h.Notifications.List)                     // 通知列表
		authorized.GET("/notifications/unread-count", h.Notifications.UnreadCount) // 未读数量
		authorized.POST("/notifications/read-all", h.Notifications.ReadAll)        // 全部标记为已读
		authorized.POST("/notifications/:id/read", h.Notifications.Read)           // 标记单条通知为已读
		authorized.DELETE("/notifications/:id", h.Notifications.Delete)            // 删除单条通知
	}

	api.GET("/list/user/:username", h.GameList.ByUsername) // 他人的游戏清单
}
