// Package main はログインAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/login-gate/internal/auth"
	"github.com/yourusername/login-gate/internal/config"
	"github.com/yourusername/login-gate/internal/credentials"
	"github.com/yourusername/login-gate/internal/logging"
	"github.com/yourusername/login-gate/internal/reload"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(cfg.GinMode)

	// 初期化: 資格情報ストアの読み込み（失敗しても起動は継続）
	store := credentials.NewStore(cfg.CredentialsFile, logger)
	if _, err := store.Load(); err != nil {
		logger.Warn("starting with an empty credential store; /login will report unavailable",
			logging.Event("credentials_unavailable"),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// SIGHUP の既定動作（終了）を先に無効化してから監視を始める
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	var stack *reloadStack
	if cfg.QueueEnabled() {
		stack, err = setupReload(ctx, cfg, store, logger)
		if err != nil {
			logger.Fatal("failed to set up reload queue", zap.Error(err))
		}
	}
	go watchReloadSignal(ctx, hup, store, logger)

	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestID(), logging.AccessLog(logger))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		logging.RequestIDHeader,
	}
	corsConfig.ExposeHeaders = []string{logging.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, cfg, store, stack, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting API server",
			logging.Event("server_started"),
			zap.String("addr", srv.Addr),
			zap.String("mode", cfg.GinMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", logging.Event("server_stopping"))

	timeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if stack != nil {
		stack.Close()
	}
	store.Close()
	logger.Info("server stopped", logging.Event("server_stopped"))
}

// handleHealth はヘルスチェックエンドポイントのハンドラーを返します。
func handleHealth(store *credentials.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := gin.H{
			"status":           "ok",
			"service":          "login-gate-api",
			"store":            store.State().String(),
			"credentialsCount": store.Len(),
		}
		if loadedAt := store.LoadedAt(); !loadedAt.IsZero() {
			payload["loadedAt"] = loadedAt.UTC()
		}
		if store.Len() == 0 {
			payload["status"] = "degraded"
		}
		c.JSON(http.StatusOK, payload)
	}
}

// setupRoutes はログインAPIと管理APIの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, store *credentials.Store, stack *reloadStack, logger *zap.Logger) {
	router.GET("/health", handleHealth(store))

	authManager := auth.NewManager(credentials.NewValidator(store), logger)
	router.GET("/", authManager.Root)
	router.POST("/login", authManager.Login)
	// パスワードリセットは存在確認のみのプレースホルダー
	router.POST("/password-reset", authManager.PasswordReset)

	if cfg.AdminToken == "" {
		return
	}

	admin := router.Group("/admin")
	admin.Use(auth.RequireAdminToken(cfg.AdminToken))
	{
		var enqueuer reload.Enqueuer
		if stack != nil {
			enqueuer = stack.manager
		}
		admin.POST("/reload", reload.Handler(store, enqueuer))
		if stack != nil {
			admin.GET("/reload/:id", reload.StatusHandler(stack.manager))
		}
	}
}
