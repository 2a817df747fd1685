package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	echo := func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	}
	r.GET("/ping", echo)
	r.POST("/echo", echo)
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"), "不同 IP 分開計算")

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("1.1.1.1"), "每 30 秒補一個")
	assert.False(t, rl.Allow("1.1.1.1"))
}

func TestRateLimit(t *testing.T) {
	r := newEngine(RateLimit(1, time.Minute))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", "").Code)
	w := serve(r, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestDeduplication(t *testing.T) {
	r := newEngine(Deduplication(time.Minute))

	first := serve(r, http.MethodPost, "/echo", `{"product_name":"süt"}`)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, `{"product_name":"süt"}`, first.Body.String(), "請求體讀取後需恢復")

	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/echo", `{"product_name":"süt"}`).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/echo", `{"product_name":"un"}`).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", "").Code)
}

func TestDeduplicator_WindowExpires(t *testing.T) {
	d := NewDeduplicator(time.Second)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	assert.False(t, d.Duplicate("a"))
	assert.True(t, d.Duplicate("a"))
	now = now.Add(2 * time.Second)
	assert.False(t, d.Duplicate("a"))
}

func TestBodySizeLimit(t *testing.T) {
	r := newEngine(BodySizeLimit(8))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/echo", "small").Code)
	w := serve(r, http.MethodPost, "/echo", "this body is too large")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "PAYLOAD_TOO_LARGE")
}

func TestBodySizeLimit_UnknownLength(t *testing.T) {
	r := newEngine(BodySizeLimit(8))

	req := httptest.NewRequest(http.MethodPost, "/echo", io.NopCloser(bytes.NewBufferString("this body is too large")))
	req.ContentLength = -1
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.LessOrEqual(t, len(w.Body.String()), 8, "讀取時截斷")
}

func TestRecovery(t *testing.T) {
	r := newEngine(Recovery(), Logger())

	w := serve(r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
