package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"questlog/internal/config"
	"questlog/internal/db"
	"questlog/internal/handlers"
	"questlog/internal/logging"
	"questlog/internal/middleware"
	"questlog/internal/router"
	"questlog/internal/services"
	"questlog/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	gdb, err := db.Init(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	store := db.NewStore(gdb)

	cache, err := utils.NewCache(cfg.ThreadCacheSize)
	if err != nil {
		logger.Fatal("Failed to create thread cache", zap.Error(err))
	}

	// Services
	userService := services.NewUserService(store)
	reviewService := services.NewReviewService(store, cache, cfg.ThreadCacheTTL, logger)
	gameListService := services.NewGameListService(store, reviewService)
	notificationService := services.NewNotificationService(store)

	// 未配置 Twitch 凭据时目录接口返回 503
	var catalog handlers.CatalogAPI
	if cfg.Catalog.Enabled() {
		catalog = services.NewCatalogClient(ctx, cfg.Catalog, logger)
	} else {
		logger.Warn("TWITCH_CLIENT_ID / TWITCH_CLIENT_SECRET not set, game catalog disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(logger), middleware.RequestLogger(logger), middleware.Metrics())

	// Setup Sessions
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("questlog_session", sessionStore))
	r.Use(middleware.LoadUser(userService, logger))

	router.RegisterRoutes(r, router.Handlers{
		Auth:          handlers.NewAuthHandler(userService),
		Reviews:       handlers.NewReviewHandler(reviewService),
		GameList:      handlers.NewGameListHandler(gameListService),
		Notifications: handlers.NewNotificationHandler(notificationService),
		Catalog:       handlers.NewCatalogHandler(catalog),
		Users:         handlers.NewUserHandler(userService),
	}, middleware.RateLimit(5, 10, logger))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("QuestLog server starting", zap.String("addr", srv.Addr), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
