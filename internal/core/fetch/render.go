package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"price-discovery/internal/pkg/common"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// RenderOptions 無頭瀏覽器設定
type RenderOptions struct {
	Timeout         time.Duration
	WaitForSelector string
	CaptureDelay    time.Duration
	DisableHeadless bool
	MaxBodyBytes    int64
	Identities      *IdentityPool
}

// ChromedpRenderer 以 chromedp 執行無頭 Chrome，匯出最終 DOM
type ChromedpRenderer struct {
	opts RenderOptions
}

// NewChromedpRenderer 創建瀏覽器渲染器
func NewChromedpRenderer(opts RenderOptions) *ChromedpRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 * 1024 * 1024
	}
	if opts.CaptureDelay <= 0 {
		opts.CaptureDelay = 1500 * time.Millisecond
	}
	if opts.Identities == nil {
		opts.Identities = NewIdentityPool(nil, "")
	}
	return &ChromedpRenderer{opts: opts}
}

// Render 導覽至目標 URL，等待腳本執行後取回 outer HTML
func (r *ChromedpRenderer) Render(parentCtx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(parentCtx, r.opts.Timeout)
	defer cancel()

	identity := r.opts.Identities.Next()
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !r.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(identity.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	start := time.Now()
	var html string

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if selector := strings.TrimSpace(r.opts.WaitForSelector); selector != "" {
		actions = append(actions,
			chromedp.WaitReady(selector, chromedp.ByQuery),
			chromedp.Sleep(250*time.Millisecond),
		)
	} else {
		actions = append(actions, chromedp.Sleep(r.opts.CaptureDelay))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}

	html = truncateUTF8(html, r.opts.MaxBodyBytes)

	common.LogDebug("chromedp render complete",
		zap.String("url", url),
		zap.Duration("latency", time.Since(start)),
		zap.Int("html_bytes", len(html)),
	)
	return html, nil
}

// truncateUTF8 截斷至最多 max 位元組，退回到字元邊界，不切開多位元組字元
func truncateUTF8(s string, max int64) string {
	if max <= 0 || int64(len(s)) <= max {
		return s
	}
	cut := int(max)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
