package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"price-discovery/internal/core/cache"
	"price-discovery/internal/core/fetch"
	"price-discovery/internal/infrastructure/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(cfg *config.Config, cm *cache.Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if cfg != nil {
			c.Set(ConfigKey, cfg)
		}
		if cm != nil {
			c.Set(CacheManagerKey, cm)
		}
		c.Next()
	})
	r.GET("/health", HealthCheck)
	r.GET("/ready", ReadinessCheck)
	r.GET("/live", LivenessCheck)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthCheck(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Version = "1.2.3"
	cm := cache.NewManager(cache.NewMemoryStore(), cache.Options{MaxEntries: 10})
	_, _ = cache.Get[string](context.Background(), cm, "missing")

	w := get(newRouter(cfg, cm), "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, fetch.BotRulesVersion, resp.BotRulesVersion)
	require.NotNil(t, resp.Cache)
	assert.Equal(t, int64(1), resp.Cache.Misses)
	assert.Equal(t, 10, resp.Cache.MaxSize)
	assert.False(t, resp.AssistAvailable)
}

func TestHealthCheck_MissingConfig(t *testing.T) {
	w := get(newRouter(nil, nil), "/health")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReadinessCheck(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cache.Enabled = true

	w := get(newRouter(cfg, nil), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"SERVICE_UNAVAILABLE"`)

	cm := cache.NewManager(cache.NewMemoryStore(), cache.Options{})
	assert.Equal(t, http.StatusOK, get(newRouter(cfg, cm), "/ready").Code)

	cfg.Cache.Enabled = false
	assert.Equal(t, http.StatusOK, get(newRouter(cfg, nil), "/ready").Code)
}

func TestLivenessCheck(t *testing.T) {
	w := get(newRouter(nil, nil), "/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}
