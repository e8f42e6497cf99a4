package api

import (
	"net/http"
	"time"

	"recipe-importer/internal/api/handlers/health"
	sessionHandler "recipe-importer/internal/api/handlers/session"
	"recipe-importer/internal/api/middleware"
	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"
	"recipe-importer/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// 超時設置（匯入需要等待兩個爬蟲請求）
	timeoutDuration = 90 * time.Second
	// 預設請求體大小限制 (1MB)
	defaultMaxBodySize = 1 << 20
)

// SetupRouter 設置路由；redis 未啟用時傳 nil
func SetupRouter(cfg *config.Config, sessions *session.Manager, redis health.Pinger) *gin.Engine {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New()) // 自動生成請求 ID
	router.Use(middleware.Logger())

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 請求體大小限制
	maxBodySize := cfg.Server.MaxBodyBytes
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	router.Use(middleware.BodySizeLimit(maxBodySize))

	if cfg.RateLimit.Enabled && cfg.RateLimit.Requests > 0 && cfg.RateLimit.Window > 0 {
		router.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}

	router.Use(middleware.Timeout(timeoutDuration))

	// 注入設定與依賴
	router.Use(func(c *gin.Context) {
		c.Set(health.ConfigKey, cfg)
		c.Set(health.SessionsKey, sessions)
		if redis != nil {
			c.Set(health.RedisKey, redis)
		}
		c.Next()
	})

	// 健康檢查路由
	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)
	router.GET("/live", health.LivenessCheck)

	// 重複點擊「建立」「匯入」只送出一次
	dedup := middleware.Deduplication(cfg.DedupWindow)
	h := sessionHandler.NewHandler(sessions, cfg.App.Debug)

	// API 路由組
	api := router.Group("/api/v1")
	{
		api.POST("/sessions", h.HandleCreate)

		sessionGroup := api.Group("/sessions/:id")
		{
			sessionGroup.GET("", h.HandleGet)
			sessionGroup.DELETE("", h.HandleDelete)
			sessionGroup.PUT("/details", h.HandleSetDetails)
			sessionGroup.POST("/clear", h.HandleClear)
			sessionGroup.GET("/form-data", h.HandleFormData)
			sessionGroup.GET("/stats", h.HandleStats)
			sessionGroup.DELETE("/suggestion-cache", h.HandleClearSuggestionCache)
			sessionGroup.POST("/import", dedup, h.HandleImport)

			sessionGroup.GET("/rows/html", h.HandleRenderRows)
			sessionGroup.POST("/rows", h.HandleAddRow)

			rowGroup := sessionGroup.Group("/rows/:key")
			{
				rowGroup.GET("", h.HandleGetRow)
				rowGroup.PATCH("", h.HandleUpdateRow)
				rowGroup.DELETE("", h.HandleRemoveRow)
				rowGroup.POST("/input", h.HandleInput)
				rowGroup.POST("/focus", h.HandleFocus)
				rowGroup.POST("/blur", h.HandleBlur)
				rowGroup.POST("/keys", h.HandleKey)
				rowGroup.POST("/select", h.HandleSelect)
				rowGroup.GET("/suggestions", h.HandleSuggestions)
				rowGroup.POST("/managed", dedup, h.HandleCreateManaged)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, common.ErrorResponse{
			Code:    common.ErrCodeNotFound,
			Message: "Route not found",
		})
	})

	common.LogInfo("Router setup completed successfully",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.Bool("redis", redis != nil),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("timeout", timeoutDuration),
		zap.Int64("max_body_size", maxBodySize),
	)

	return router
}
