package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recipe-importer/internal/api"
	"recipe-importer/internal/api/handlers/health"
	"recipe-importer/internal/backend"
	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"
	"recipe-importer/internal/session"

	"go.uber.org/zap"
)

func main() {
	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("backend_base_url", cfg.Backend.BaseURL),
		zap.String("csrf_token", config.MaskToken(cfg.Backend.CSRFToken)),
		zap.Strings("supported_domains", cfg.Import.SupportedDomains),
		zap.Bool("redis_enabled", cfg.Session.RedisEnabled),
	)

	client := backend.NewClient(cfg.Backend)

	// Redis 快照（可選）
	var (
		mirror session.Mirror
		pinger health.Pinger
	)
	redisMirror, err := session.NewRedisMirror(cfg.Session)
	if err != nil {
		common.LogFatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisMirror != nil {
		defer redisMirror.Close()
		mirror = redisMirror
		pinger = redisMirror
	}

	factory, err := session.NewFactory(cfg, client)
	if err != nil {
		common.LogFatal("Failed to load row template", zap.Error(err))
	}
	sessions := session.NewManager(factory, mirror, cfg.Session.TTL, cfg.Session.CleanupInterval)
	defer sessions.Close()

	// 設置路由
	router := api.SetupRouter(cfg, sessions, pinger)

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
			zap.Int("port", cfg.Server.Port),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogFatal("Failed to start server",
				zap.Error(err),
			)
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	// 設置關閉超時
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown",
			zap.Error(err),
		)
		return
	}

	common.LogInfo("Server exited")
}
