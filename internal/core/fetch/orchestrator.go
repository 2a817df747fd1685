package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Source 內容取得方式
type Source string

const (
	SourceDirect   Source = "direct-http"
	SourceRendered Source = "rendered-browser"
	// SourceNone 所有方式皆失敗，Body 為空
	SourceNone Source = "none"
)

// Result 單次抓取結果，只在呼叫期間短暫持有
type Result struct {
	URL        string    `json:"url"`
	Body       string    `json:"body"`
	FetchedAt  time.Time `json:"fetched_at"`
	Source     Source    `json:"source"`
	StatusCode int       `json:"status_code,omitempty"`
}

// Empty 是否沒有取得任何內容
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Body) == ""
}

// Renderer 以無頭瀏覽器載入頁面並回傳渲染後的 DOM
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Options 抓取行為設定
type Options struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	RateLimitWait  time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Orchestrator 外送抓取協調器：閘門節流、識別輪替、重試退避與瀏覽器備援
type Orchestrator struct {
	client     *resty.Client
	gate       *Gate
	identities *IdentityPool
	renderer   Renderer
	opts       Options

	// sleep 可替換，測試用
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator 創建抓取協調器，renderer 可為 nil
func NewOrchestrator(client *resty.Client, gate *Gate, identities *IdentityPool, renderer Renderer, opts Options) *Orchestrator {
	if client == nil {
		client = resty.New()
	}
	if gate == nil {
		gate = NewGate(0, 0)
	}
	if identities == nil {
		identities = NewIdentityPool(nil, "")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.RateLimitWait <= 0 {
		opts.RateLimitWait = 5 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 * 1024 * 1024
	}

	return &Orchestrator{
		client:     client,
		gate:       gate,
		identities: identities,
		renderer:   renderer,
		opts:       opts,
		sleep:      sleepContext,
	}
}

// NewFromConfig 依設定建立協調器與（啟用時）瀏覽器備援
func NewFromConfig(cfg *config.Config) *Orchestrator {
	identities := NewIdentityPool(cfg.Scraper.UserAgents, cfg.Scraper.AcceptLanguage)

	var renderer Renderer
	if cfg.Render.Enabled {
		renderer = NewChromedpRenderer(RenderOptions{
			Timeout:         cfg.Render.Timeout,
			WaitForSelector: cfg.Render.WaitSelector,
			CaptureDelay:    cfg.Render.CaptureDelay,
			DisableHeadless: !cfg.Render.Headless,
			MaxBodyBytes:    cfg.Scraper.MaxBodyBytes,
			Identities:      identities,
		})
	}

	client := resty.New().
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return NewOrchestrator(
		client,
		NewGate(cfg.Scraper.MinDelay, cfg.Scraper.MaxDelay),
		identities,
		renderer,
		Options{
			MaxRetries:     cfg.Scraper.MaxRetries,
			RetryBaseDelay: cfg.Scraper.RetryBaseDelay,
			RateLimitWait:  cfg.Scraper.RateLimitWait,
			RequestTimeout: cfg.Scraper.RequestTimeout,
			MaxBodyBytes:   cfg.Scraper.MaxBodyBytes,
		},
	)
}

// attemptOutcome 單次直接請求的結果分類
type attemptOutcome int

const (
	outcomeOK attemptOutcome = iota
	outcomeNotFound
	outcomeRateLimited
	outcomeBlocked
	outcomeTransient
)

// Fetch 抓取 URL。一般的 HTTP 失敗不回傳錯誤：重試用盡且瀏覽器備援也失敗時，
// 回傳 Body 為空的結果並記錄日誌。
func (o *Orchestrator) Fetch(ctx context.Context, url string) Result {
	empty := Result{URL: url, Source: SourceNone, FetchedAt: time.Now()}

	blocked := false
	for attempt := 0; attempt < o.opts.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return empty
		}

		body, status, outcome, err := o.attempt(ctx, url)
		switch outcome {
		case outcomeOK:
			return Result{URL: url, Body: body, FetchedAt: time.Now(), Source: SourceDirect, StatusCode: status}

		case outcomeNotFound:
			common.LogInfo("Page not found",
				zap.String("url", url),
				zap.Int("status", status),
			)
			empty.StatusCode = status
			return empty

		case outcomeBlocked:
			blocked = true

		case outcomeRateLimited:
			common.LogWarn("Rate limited by upstream",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", o.opts.RateLimitWait),
			)
			if attempt+1 < o.opts.MaxRetries {
				if o.sleep(ctx, o.opts.RateLimitWait) != nil {
					return empty
				}
			}
			continue

		default:
			delay := o.backoff(attempt)
			common.LogWarn("Fetch attempt failed",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Int("status", status),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			if attempt+1 < o.opts.MaxRetries {
				if o.sleep(ctx, delay) != nil {
					return empty
				}
			}
			continue
		}
		break
	}

	if ctx.Err() != nil {
		return empty
	}

	if result, ok := o.render(ctx, url, blocked); ok {
		return result
	}

	common.LogError("Fetch failed after retries and fallback",
		zap.String("url", url),
		zap.Int("attempts", o.opts.MaxRetries),
		zap.Bool("blocked", blocked),
	)
	return empty
}

// attempt 通過閘門後執行一次直接請求
func (o *Orchestrator) attempt(ctx context.Context, url string) (string, int, attemptOutcome, error) {
	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return "", 0, outcomeTransient, err
	}
	defer release()

	reqCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()

	identity := o.identities.Next()
	resp, err := o.client.R().
		SetContext(reqCtx).
		SetDoNotParseResponse(true).
		SetHeader("User-Agent", identity.UserAgent).
		SetHeaders(identity.Headers).
		Get(url)
	if err != nil {
		if resp != nil && resp.RawBody() != nil {
			resp.RawBody().Close()
		}
		return "", 0, outcomeTransient, fmt.Errorf("http fetch failed: %w", err)
	}

	status := resp.StatusCode()
	raw := resp.RawBody()

	switch {
	case status == http.StatusNotFound:
		closeQuietly(raw)
		return "", status, outcomeNotFound, nil
	case status == http.StatusTooManyRequests:
		closeQuietly(raw)
		return "", status, outcomeRateLimited, nil
	case status != http.StatusOK:
		closeQuietly(raw)
		return "", status, outcomeTransient, fmt.Errorf("unexpected status %d", status)
	}

	data, err := readBody(raw, resp.Header().Get("Content-Encoding"), o.opts.MaxBodyBytes)
	if err != nil {
		return "", status, outcomeTransient, err
	}
	body := string(data)

	if verdict := DetectBotInterception(body); verdict.Intercepted {
		common.LogWarn("Bot interception detected",
			zap.String("url", url),
			zap.String("rule", verdict.Rule),
			zap.String("detail", verdict.Detail),
			zap.String("rules_version", BotRulesVersion),
		)
		return "", status, outcomeBlocked, nil
	}
	if strings.TrimSpace(body) == "" {
		return "", status, outcomeTransient, errors.New("empty body")
	}
	return body, status, outcomeOK, nil
}

// render 以瀏覽器備援抓取，同樣經過閘門
func (o *Orchestrator) render(ctx context.Context, url string, blocked bool) (Result, bool) {
	if o.renderer == nil {
		return Result{}, false
	}

	common.LogInfo("Falling back to browser render",
		zap.String("url", url),
		zap.Bool("blocked", blocked),
	)

	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return Result{}, false
	}
	defer release()

	html, err := o.renderer.Render(ctx, url)
	if err != nil {
		common.LogWarn("Browser render failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return Result{}, false
	}
	if strings.TrimSpace(html) == "" {
		return Result{}, false
	}
	if verdict := DetectBotInterception(html); verdict.Intercepted {
		common.LogWarn("Rendered page still intercepted",
			zap.String("url", url),
			zap.String("rule", verdict.Rule),
		)
		return Result{}, false
	}

	return Result{
		URL:        url,
		Body:       html,
		FetchedAt:  time.Now(),
		Source:     SourceRendered,
		StatusCode: http.StatusOK,
	}, true
}

// backoff 2^attempt × baseDelay
func (o *Orchestrator) backoff(attempt int) time.Duration {
	return o.opts.RetryBaseDelay * time.Duration(1<<uint(attempt))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type closer interface{ Close() error }

func closeQuietly(c closer) {
	if c != nil {
		_ = c.Close()
	}
}
