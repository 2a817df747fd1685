package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"price-discovery/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deduplicator 記錄近期 POST 請求的指紋
type Deduplicator struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewDeduplicator window <= 0 時預設 1 秒
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = time.Second
	}
	return &Deduplicator{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Duplicate 指紋在 window 內出現過回傳 true，否則記錄並回傳 false
func (d *Deduplicator) Duplicate(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[fingerprint]; ok && now.Sub(last) <= d.window {
		return true
	}
	d.seen[fingerprint] = now

	// 舊指紋在寫入時順帶清掉
	if now.Sub(d.lastSweep) > 10*d.window {
		for k, t := range d.seen {
			if now.Sub(t) > d.window {
				delete(d.seen, k)
			}
		}
		d.lastSweep = now
	}
	return false
}

// Deduplication 請求去重中間件：同一用戶端在 window 內送出相同的 POST 內容時回傳 429
func Deduplication(window time.Duration) gin.HandlerFunc {
	dedup := NewDeduplicator(window)

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		fingerprint := c.ClientIP() + "|" + c.Request.Method + ":" + c.Request.URL.Path
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				common.LogError("Failed to read request body", zap.Error(err))
				c.Next()
				return
			}
			hash := sha256.Sum256(body)
			fingerprint += ":" + hex.EncodeToString(hash[:])
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		if dedup.Duplicate(fingerprint) {
			common.LogInfo("Duplicate request rejected",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, common.ErrorResponse{
				Code:    common.ErrCodeTooManyRequests,
				Message: "Request too frequent",
			})
			return
		}

		c.Next()
	}
}
