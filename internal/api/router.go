package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"price-discovery/internal/api/handlers/health"
	ingredientHandler "price-discovery/internal/api/handlers/ingredient"
	priceHandler "price-discovery/internal/api/handlers/price"
	"price-discovery/internal/api/middleware"
	"price-discovery/internal/core/ai/service"
	"price-discovery/internal/core/cache"
	"price-discovery/internal/core/matching"
	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/infrastructure/events"
	"price-discovery/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// 預設請求超時，涵蓋重試與瀏覽器備援
	defaultTimeout = 120 * time.Second
	// 請求體大小限制 (1MB)
	maxBodySize = 1 << 20
)

// Dependencies 路由需要的服務
type Dependencies struct {
	Cache     *cache.Manager
	Catalog   priceHandler.Catalog
	Matcher   priceHandler.Matcher
	Batch     *matching.Batcher
	AI        *service.Service
	Publisher events.Publisher
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, error) {
	if deps.Catalog == nil || deps.Matcher == nil {
		return nil, errors.New("catalog and matcher are required")
	}

	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(common.GenerateUUID)))
	router.Use(middleware.Logger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.BodySizeLimit(maxBodySize))

	timeout := defaultTimeout
	if cfg.Server.WriteTimeout > 0 {
		timeout = cfg.Server.WriteTimeout
	}
	router.Use(requestTimeout(timeout))

	// 注入健康檢查所需的狀態
	router.Use(func(c *gin.Context) {
		c.Set(health.ConfigKey, cfg)
		if deps.Cache != nil {
			c.Set(health.CacheManagerKey, deps.Cache)
		}
		if deps.AI != nil {
			c.Set(health.AIServiceKey, deps.AI)
		}
		if deps.Batch != nil {
			c.Set(health.BatchKey, deps.Batch)
		}
		c.Next()
	})

	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)
	router.GET("/live", health.LivenessCheck)

	api := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}
	api.Use(middleware.Deduplication(cfg.DedupWindow))
	{
		var batch priceHandler.BatchRunner
		if deps.Batch != nil {
			batch = deps.Batch
		}
		priceHandler.NewHandler(deps.Catalog, deps.Matcher, batch, deps.Publisher).Register(api.Group("/price"))

		ingredientGroup := api.Group("/ingredients")
		{
			ingredientGroup.POST("/parse", ingredientHandler.HandleParse)
		}
	}

	common.LogInfo("Router setup completed successfully",
		zap.Bool("cache_enabled", deps.Cache != nil),
		zap.Bool("assist_available", deps.AI.Available()),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("timeout", timeout),
		zap.Int64("max_body_size", maxBodySize),
	)

	return router, nil
}

// requestTimeout 為每個請求設定期限，處理程序未回應即逾時時回傳 504
func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			common.LogError("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", requestid.Get(c)),
				zap.Duration("timeout", timeout),
			)
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, common.ErrorResponse{
				Code:    common.ErrCodeGatewayTimeout,
				Message: common.ErrGatewayTimeout.Message,
				Details: timeout.String(),
			})
		}
	}
}
