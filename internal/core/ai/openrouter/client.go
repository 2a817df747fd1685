package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"price-discovery/internal/core/ai/provider"
	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Client OpenRouter API 客戶端
type Client struct {
	client    *resty.Client
	limiter   *rate.Limiter
	model     string
	maxTokens int
	timeout   time.Duration
}

// Options 客戶端設定
type Options struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerMinute int
}

// chatRequest 表示 API 請求
type chatRequest struct {
	Model       string             `json:"model"`
	Messages    []provider.Message `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

// chatResponse OpenRouter 響應結構
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message provider.Message `json:"message"`
	} `json:"choices"`
	Usage provider.Usage `json:"usage"`
}

// apiError 表示 API 錯誤
type apiError struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// NewClient 創建新的 OpenRouter 客戶端
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+opts.APIKey).
		SetHeader("HTTP-Referer", "https://github.com/price-discovery").
		SetHeader("X-Title", "Price Discovery")

	return &Client{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
	}
}

// NewFromConfig 依設定建立客戶端
func NewFromConfig(cfg *config.Config) *Client {
	return NewClient(Options{
		APIKey:            cfg.OpenRouter.APIKey,
		BaseURL:           cfg.OpenRouter.BaseURL,
		Model:             cfg.OpenRouter.Model,
		MaxTokens:         cfg.OpenRouter.MaxTokens,
		Timeout:           cfg.OpenRouter.Timeout,
		RequestsPerMinute: cfg.OpenRouter.RequestsPerMinute,
	})
}

// Generate 生成回應
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body := chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = c.maxTokens
	}

	common.LogDebug("Sending request to OpenRouter",
		zap.String("model", c.model),
		zap.Int("messages", len(req.Messages)),
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("failed to send request to OpenRouter: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		var apiErr apiError
		msg := common.Truncate(resp.String(), 300)
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		common.LogWarn("OpenRouter returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("model", c.model),
			zap.String("message", msg),
		)
		return nil, fmt.Errorf("OpenRouter API error (status %d): %s", resp.StatusCode(), msg)
	}

	var result chatResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse OpenRouter response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in OpenRouter response")
	}

	content := strings.TrimSpace(result.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("empty content in OpenRouter response")
	}

	model := result.Model
	if model == "" {
		model = c.model
	}
	return &provider.Response{Content: content, Model: model, Usage: result.Usage}, nil
}

// GetModel 回傳模型名稱
func (c *Client) GetModel() string {
	return c.model
}

// GetTimeout 回傳單次請求逾時
func (c *Client) GetTimeout() time.Duration {
	return c.timeout
}

// Close 關閉客戶端
func (c *Client) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}
