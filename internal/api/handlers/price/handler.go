package price

import (
	"context"
	"net/http"
	"time"

	"price-discovery/internal/api/handlers"
	"price-discovery/internal/core/market"
	"price-discovery/internal/core/matching"
	"price-discovery/internal/infrastructure/events"
	"price-discovery/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Catalog 搜尋與商品詳細資料
type Catalog interface {
	Search(ctx context.Context, query string, page int, sort market.SortHint) (*market.SearchResult, error)
	Product(ctx context.Context, id string) (*market.ProductDetail, error)
}

// Matcher 最佳報價比對
type Matcher interface {
	FindBestOffer(ctx context.Context, productName, quantityHint string) (*matching.BestOffer, error)
}

// BatchRunner 多項比價
type BatchRunner interface {
	Run(ctx context.Context, items []matching.BatchItem) (*matching.BatchSummary, error)
}

// SearchQuery 搜尋參數
type SearchQuery struct {
	Q    string `form:"q" binding:"required"`
	Page int    `form:"page"`
	Sort string `form:"sort"`
}

// BestOfferRequest 最佳報價請求
type BestOfferRequest struct {
	ProductName  string `json:"product_name" binding:"required"`
	QuantityHint string `json:"quantity_hint,omitempty"`
}

// BatchRequest 一次查詢多項食材
type BatchRequest struct {
	Items []matching.BatchItem `json:"items" binding:"required"`
}

// Handler 價格查詢處理程序
type Handler struct {
	catalog   Catalog
	matcher   Matcher
	batch     BatchRunner
	publisher events.Publisher
}

// NewHandler 創建價格處理程序；batch 為 nil 時不提供批次路由，publisher 可為 nil
func NewHandler(catalog Catalog, matcher Matcher, batch BatchRunner, publisher events.Publisher) *Handler {
	return &Handler{
		catalog:   catalog,
		matcher:   matcher,
		batch:     batch,
		publisher: publisher,
	}
}

// Register 註冊路由
func (h *Handler) Register(group *gin.RouterGroup) {
	group.GET("/search", h.HandleSearch)
	group.GET("/products/:id", h.HandleProduct)
	group.POST("/best-offer", h.HandleBestOffer)
	if h.batch != nil {
		group.POST("/best-offers", h.HandleBatch)
	}
}

// HandleSearch 關鍵字搜尋
func (h *Handler) HandleSearch(c *gin.Context) {
	var q SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handlers.RespondError(c, handlers.BindError(err))
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	sort, err := market.ParseSortHint(q.Sort)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	result, err := h.catalog.Search(c.Request.Context(), q.Q, q.Page, sort)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleProduct 商品詳細資料與各商家報價
func (h *Handler) HandleProduct(c *gin.Context) {
	detail, err := h.catalog.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	if detail == nil {
		handlers.RespondError(c, common.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// HandleBestOffer 找出最符合食材需求的商品與報價
func (h *Handler) HandleBestOffer(c *gin.Context) {
	requestID := requestid.Get(c)

	var req BestOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondError(c, handlers.BindError(err))
		return
	}

	common.LogInfo("開始處理比價請求",
		zap.String("request_id", requestID),
		zap.String("product_name", req.ProductName),
		zap.String("quantity_hint", req.QuantityHint),
	)

	start := time.Now()
	result, err := h.matcher.FindBestOffer(c.Request.Context(), req.ProductName, req.QuantityHint)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	if result == nil {
		handlers.RespondError(c, common.ErrNoPriceAvailable)
		return
	}

	h.publishMatch(req.ProductName, result)

	common.LogInfo("比價請求完成",
		zap.String("request_id", requestID),
		zap.String("listing_id", result.Listing.ID),
		zap.String("source", string(result.Source)),
		zap.Duration("duration", time.Since(start)),
	)
	c.JSON(http.StatusOK, result)
}

// HandleBatch 為食譜的整份食材清單比價
func (h *Handler) HandleBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondError(c, handlers.BindError(err))
		return
	}

	summary, err := h.batch.Run(c.Request.Context(), req.Items)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	for _, r := range summary.Results {
		if r.Offer != nil {
			h.publishMatch(r.Item.ProductName, r.Offer)
		}
	}
	c.JSON(http.StatusOK, summary)
}

// publishMatch 背景發送比對成功事件
func (h *Handler) publishMatch(productName string, result *matching.BestOffer) {
	evt := events.MatchEvent{
		ProductName: productName,
		ListingID:   result.Listing.ID,
		Price:       result.Price(),
		Merchant:    result.Listing.MerchantName,
		Source:      string(result.Source),
	}
	if result.BestOffer != nil && result.BestOffer.Offer.MerchantName != "" {
		evt.Merchant = result.BestOffer.Offer.MerchantName
	}
	events.Emit(h.publisher, evt)
}
