package market

import (
	"context"
	"errors"
	"strings"
	"time"

	"price-discovery/internal/core/cache"
	"price-discovery/internal/core/extract"
	"price-discovery/internal/core/fetch"
	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/pkg/common"

	"go.uber.org/zap"
)

// Fetcher 外送抓取，失敗時回傳空 Body 而非錯誤
type Fetcher interface {
	Fetch(ctx context.Context, url string) fetch.Result
}

// Client 比價網站客戶端：快取 → 抓取 → 擷取 → 對應
type Client struct {
	fetcher Fetcher
	cache   *cache.Manager
	pageTTL time.Duration
	urls    URLBuilder
	mapper  *Mapper
}

// NewClient 創建比價網站客戶端，cacheManager 可為 nil
func NewClient(fetcher Fetcher, cacheManager *cache.Manager, urls URLBuilder, pageTTL time.Duration) *Client {
	return &Client{
		fetcher: fetcher,
		cache:   cacheManager,
		pageTTL: pageTTL,
		urls:    urls,
		mapper:  NewMapper(urls),
	}
}

// NewClientFromConfig 依設定建立客戶端
func NewClientFromConfig(cfg *config.Config, fetcher Fetcher, cacheManager *cache.Manager) *Client {
	return NewClient(fetcher, cacheManager, URLBuilder{
		BaseURL:           cfg.Scraper.BaseURL,
		SearchURL:         cfg.Scraper.SearchURL,
		DetailURLTemplate: cfg.Scraper.DetailURLTemplate,
	}, cfg.Cache.TTL)
}

// URLs 回傳網址組裝設定
func (c *Client) URLs() URLBuilder {
	return c.urls
}

// Validate 檢查呼叫端參數
func (r SearchRequest) Validate() error {
	if Normalize(r.RawTerm) == "" {
		return common.NewFieldError("query", "search term is required")
	}
	if r.Page < 1 {
		return common.NewFieldError("page", "page must be a positive number")
	}
	return nil
}

// Search 搜尋商品。只有參數錯誤會回傳 error；查無結果回傳空列表。
func (c *Client) Search(ctx context.Context, query string, page int, sort SortHint) (*SearchResult, error) {
	req := SearchRequest{RawTerm: query, Page: page, Sort: sort}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	searchURL := c.urls.BuildSearchURL(req.RawTerm, req.Page, req.Sort)
	body := c.page(ctx, searchURL)

	result := &SearchResult{
		Query:       Normalize(req.RawTerm),
		Products:    []ProductListing{},
		CurrentPage: req.Page,
	}
	if body == "" {
		return result, nil
	}

	extracted := extract.Extract(body)
	result.Products = c.mapper.Listings(extracted)
	result.TotalPages = extracted.TotalPages

	common.LogInfo("Search completed",
		zap.String("query", result.Query),
		zap.Int("page", req.Page),
		zap.String("sort", string(req.Sort)),
		zap.Int("products", len(result.Products)),
		zap.Int("total_pages", result.TotalPages),
		zap.Strings("strategies", strategyNames(extracted.Strategies)),
	)
	return result, nil
}

// Product 取得商品詳細頁，查無資料時回傳 (nil, nil)
func (c *Client) Product(ctx context.Context, id string) (*ProductDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, common.NewFieldError("id", "product id is required")
	}

	detailURL := c.urls.BuildDetailURL(id)
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		detailURL = id
		id = idFromProductURL(id)
	}

	body := c.page(ctx, detailURL)
	if body == "" {
		return nil, nil
	}

	detail := c.mapper.Detail(extract.Extract(body), id)
	if detail != nil && detail.ProductURL == "" {
		detail.ProductURL = detailURL
	}
	return detail, nil
}

// page 先查快取；未命中時抓取並只快取非空內容
func (c *Client) page(ctx context.Context, url string) string {
	if body, ok := cache.Get[string](ctx, c.cache, pageCacheKey(url)); ok && body != "" {
		return body
	}

	res := c.fetcher.Fetch(ctx, url)
	if res.Empty() {
		return ""
	}

	if err := cache.Set(ctx, c.cache, pageCacheKey(url), res.Body, c.pageTTL); err != nil && !errors.Is(err, cache.ErrDisabled) {
		common.LogWarn("Failed to cache page body",
			zap.String("url", url),
			zap.Error(err),
		)
	}
	common.LogDebug("Page fetched",
		zap.String("url", url),
		zap.String("source", string(res.Source)),
		zap.Int("bytes", len(res.Body)),
	)
	return res.Body
}

func pageCacheKey(url string) string {
	return "page:" + url
}

func strategyNames(ss []extract.Strategy) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
