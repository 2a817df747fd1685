package health

import (
	"net/http"
	"runtime"
	"time"

	"price-discovery/internal/core/ai/service"
	"price-discovery/internal/core/cache"
	"price-discovery/internal/core/fetch"
	"price-discovery/internal/core/matching"
	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context 鍵，由路由中間件注入
const (
	ConfigKey       = "config"
	CacheManagerKey = "cache_manager"
	AIServiceKey    = "ai_service"
	BatchKey        = "batcher"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status          string                 `json:"status"`
	Timestamp       time.Time              `json:"timestamp"`
	Version         string                 `json:"version"`
	Runtime         map[string]interface{} `json:"runtime"`
	Cache           *cache.Stats           `json:"cache,omitempty"`
	Batch           *matching.BatchStatus  `json:"batch,omitempty"`
	AssistAvailable bool                   `json:"assist_available"`
	BotRulesVersion string                 `json:"bot_rules_version"`
}

// HealthCheck 健康檢查處理器
func HealthCheck(c *gin.Context) {
	cfg, ok := configFrom(c)
	if !ok {
		common.LogError("Configuration not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Configuration not found",
		})
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   cfg.App.Version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
		BotRulesVersion: fetch.BotRulesVersion,
	}

	if cm := cacheManagerFrom(c); cm != nil {
		stats := cm.Stats(c.Request.Context())
		response.Cache = &stats
	}
	if v, ok := c.Get(BatchKey); ok {
		if b, ok := v.(*matching.Batcher); ok {
			status := b.Status()
			response.Batch = &status
		}
	}
	if svc, ok := c.Get(AIServiceKey); ok {
		if s, ok := svc.(*service.Service); ok {
			response.AssistAvailable = s.Available()
		}
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 就緒檢查處理器：快取啟用時需可讀取後端
func ReadinessCheck(c *gin.Context) {
	cfg, ok := configFrom(c)
	if ok && cfg.Cache.Enabled && cacheManagerFrom(c) == nil {
		c.JSON(common.ErrServiceUnavailable.Status, common.ErrorResponse{
			Code:    common.ErrServiceUnavailable.Code,
			Message: common.ErrServiceUnavailable.Message,
			Details: "cache unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// LivenessCheck 存活檢查處理器
func LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func configFrom(c *gin.Context) (*config.Config, bool) {
	v, exists := c.Get(ConfigKey)
	if !exists {
		return nil, false
	}
	cfg, ok := v.(*config.Config)
	return cfg, ok && cfg != nil
}

func cacheManagerFrom(c *gin.Context) *cache.Manager {
	v, exists := c.Get(CacheManagerKey)
	if !exists {
		return nil
	}
	cm, _ := v.(*cache.Manager)
	return cm
}
