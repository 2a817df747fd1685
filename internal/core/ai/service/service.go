package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"price-discovery/internal/core/ai/openrouter"
	"price-discovery/internal/core/ai/provider"
	"price-discovery/internal/core/cache"
	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/pkg/common"

	"go.uber.org/zap"
)

// ErrUnavailable 未設定 AI 提供者
var ErrUnavailable = errors.New("assist service unavailable")

// Options 服務設定
type Options struct {
	MaxTokens   int
	EnableCache bool
	CacheTTL    time.Duration
}

// Service AI 輔助呼叫服務：統一 prompt、逾時與回應快取
type Service struct {
	provider provider.Provider
	cache    *cache.Manager
	opts     Options
}

// NewService 創建 AI 服務；p 為 nil 時所有呼叫回傳 ErrUnavailable
func NewService(p provider.Provider, cacheManager *cache.Manager, opts Options) *Service {
	return &Service{
		provider: p,
		cache:    cacheManager,
		opts:     opts,
	}
}

// NewFromConfig 依設定建立服務；未啟用或缺少 API Key 時回傳不可用的服務
func NewFromConfig(cfg *config.Config, cacheManager *cache.Manager) *Service {
	opts := Options{
		MaxTokens:   cfg.OpenRouter.MaxTokens,
		EnableCache: cfg.AI.EnableCache,
		CacheTTL:    cfg.AI.CacheTTL,
	}
	if !cfg.OpenRouter.Enabled || strings.TrimSpace(cfg.OpenRouter.APIKey) == "" {
		common.LogWarn("OpenRouter 未啟用，比對流程將使用規則式備援")
		return NewService(nil, cacheManager, opts)
	}
	return NewService(openrouter.NewFromConfig(cfg), cacheManager, opts)
}

// Available 是否可發送輔助呼叫
func (s *Service) Available() bool {
	return s != nil && s.provider != nil
}

// Complete 發送單輪 prompt。timeout > 0 時套用於本次呼叫；
// 逾時回傳 common.ErrRequestTimeout，其他提供者失敗回傳 common.ErrAIServiceError，由呼叫端決定備援。
func (s *Service) Complete(ctx context.Context, purpose, prompt string, timeout time.Duration) (string, error) {
	if !s.Available() {
		return "", ErrUnavailable
	}

	// 統一 prompt 格式，確保快取 key 一致
	prompt = normalizePrompt(prompt)
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}

	key := "ai:" + s.provider.GetModel() + ":" + prompt
	if s.opts.EnableCache {
		if val, ok := cache.Get[string](ctx, s.cache, key); ok && val != "" {
			return val, nil
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.provider.Generate(ctx, provider.UserPrompt(prompt, s.opts.MaxTokens))
	common.LogAICall(purpose, time.Since(start), err)
	if err != nil {
		return "", assistError(ctx, err)
	}

	if s.opts.EnableCache {
		if err := cache.Set(ctx, s.cache, key, resp.Content, s.opts.CacheTTL); err != nil && !errors.Is(err, cache.ErrDisabled) {
			common.LogWarn("Failed to cache assist response",
				zap.String("purpose", purpose),
				zap.Error(err),
			)
		}
	}
	return resp.Content, nil
}

// Close 關閉提供者
func (s *Service) Close() error {
	if !s.Available() {
		return nil
	}
	return s.provider.Close()
}

// assistError 逾時包成 ErrRequestTimeout，其餘失敗包成 ErrAIServiceError；取消則原樣回傳
func assistError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return common.ErrRequestTimeout.Wrap(err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return common.ErrAIServiceError.Wrap(err)
	}
}

// normalizePrompt 逐行合併連續空白並移除空行，保留行結構
func normalizePrompt(prompt string) string {
	var lines []string
	for _, line := range strings.Split(prompt, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
