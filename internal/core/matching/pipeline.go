package matching

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"price-discovery/internal/core/cache"
	"price-discovery/internal/core/ingredient"
	"price-discovery/internal/core/market"
	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/pkg/common"

	"go.uber.org/zap"
)

// Stage 比對流程狀態
type Stage string

const (
	StageExpanding  Stage = "expanding"
	StageRetrieving Stage = "retrieving"
	StageRanking    Stage = "ranking"
	StageSelected   Stage = "selected"
	StageNoMatch    Stage = "no_match"
)

// SelectionSource 最終選擇的來源
type SelectionSource string

const (
	SourceAssist   SelectionSource = "assist"
	SourceFallback SelectionSource = "fallback"
)

// Market 比價網站操作
type Market interface {
	Search(ctx context.Context, query string, page int, sort market.SortHint) (*market.SearchResult, error)
	Product(ctx context.Context, id string) (*market.ProductDetail, error)
}

// Assistant 文字生成輔助呼叫；任何錯誤都會改走備援
type Assistant interface {
	Complete(ctx context.Context, purpose, prompt string, timeout time.Duration) (string, error)
}

// ExpandedQuery 查詢擴展結果；擴展失敗時 ExpandedTerm 等於 OriginalTerm
type ExpandedQuery struct {
	OriginalTerm string `json:"original_term"`
	ExpandedTerm string `json:"expanded_term"`
}

// BestOffer 比對結果
type BestOffer struct {
	Listing   market.ProductListing `json:"listing"`
	Reason    string                `json:"reason"`
	Source    SelectionSource       `json:"source"`
	Query     ExpandedQuery         `json:"query"`
	Offers    []ScoredOffer         `json:"offers"`
	BestOffer *ScoredOffer          `json:"best_offer,omitempty"`
}

// Price 最終價格：有評分報價時取最佳報價，否則取商品最低價
func (b *BestOffer) Price() float64 {
	if b.BestOffer != nil {
		return b.BestOffer.Offer.Price
	}
	return b.Listing.Price
}

// Options 流程設定
type Options struct {
	CandidateLimit     int
	ExpansionMaxLength int
	ExclusionKeywords  []string
	ExpansionTimeout   time.Duration
	RerankTimeout      time.Duration
	PriceTTL           time.Duration
}

// Pipeline 擴展 → 取回候選 → 重新排序
type Pipeline struct {
	market     Market
	assistant  Assistant
	cache      *cache.Manager
	exclusions *ExclusionFilter
	opts       Options
}

// NewPipeline 創建比對流程；assistant 與 cacheManager 可為 nil
func NewPipeline(m Market, assistant Assistant, cacheManager *cache.Manager, opts Options) *Pipeline {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = 5
	}
	if opts.ExpansionMaxLength <= 0 {
		opts.ExpansionMaxLength = 100
	}
	if opts.ExclusionKeywords == nil {
		opts.ExclusionKeywords = config.DefaultExclusionKeywords
	}
	return &Pipeline{
		market:     m,
		assistant:  assistant,
		cache:      cacheManager,
		exclusions: NewExclusionFilter(opts.ExclusionKeywords),
		opts:       opts,
	}
}

// NewFromConfig 依設定建立比對流程
func NewFromConfig(cfg *config.Config, m Market, assistant Assistant, cacheManager *cache.Manager) *Pipeline {
	return NewPipeline(m, assistant, cacheManager, Options{
		CandidateLimit:     cfg.Matching.CandidateLimit,
		ExpansionMaxLength: cfg.Matching.ExpansionMaxLength,
		ExclusionKeywords:  cfg.Matching.ExclusionKeywords,
		ExpansionTimeout:   cfg.AI.ExpansionTimeout,
		RerankTimeout:      cfg.AI.RerankTimeout,
		PriceTTL:           cfg.Cache.PriceTTL,
	})
}

// FindBestOffer 為食材找出最合適的商品。沒有可接受的候選時回傳 (nil, nil)；
// 只有食材名稱為空會回傳錯誤。
func (p *Pipeline) FindBestOffer(ctx context.Context, productName, quantityHint string) (*BestOffer, error) {
	productName = strings.TrimSpace(productName)
	quantityHint = strings.TrimSpace(quantityHint)
	if market.Normalize(productName) == "" {
		return nil, common.NewFieldError("product_name", "product name is required")
	}

	key := priceCacheKey(productName, quantityHint)
	if cached, ok := cache.Get[BestOffer](ctx, p.cache, key); ok {
		return &cached, nil
	}

	result := p.run(ctx, productName, quantityHint)
	if result == nil {
		return nil, nil
	}

	if err := cache.Set(ctx, p.cache, key, *result, p.opts.PriceTTL); err != nil && !errors.Is(err, cache.ErrDisabled) {
		common.LogWarn("Failed to cache best offer",
			zap.String("product", productName),
			zap.Error(err),
		)
	}
	return result, nil
}

func priceCacheKey(productName, quantityHint string) string {
	return "price:" + market.Normalize(productName) + "|" + market.Normalize(quantityHint)
}

// run 依序執行各階段，任何一個階段都不會因輔助呼叫失敗而中止
func (p *Pipeline) run(ctx context.Context, productName, quantityHint string) *BestOffer {
	req := ingredient.Parse(productName)
	term := req.Name
	if market.Normalize(term) == "" {
		term = productName
	}

	logStage(StageExpanding, productName)
	query := p.expand(ctx, term, quantityHint)

	logStage(StageRetrieving, productName, zap.String("query", query.ExpandedTerm))
	candidates := p.retrieve(ctx, query.ExpandedTerm)
	if len(candidates) == 0 {
		logStage(StageNoMatch, productName, zap.String("reason", "no candidates"))
		return nil
	}

	logStage(StageRanking, productName, zap.Int("candidates", len(candidates)))
	chosen, reason, source := p.rank(ctx, term, quantityHint, candidates)
	if chosen == nil {
		logStage(StageNoMatch, productName, zap.String("reason", reason))
		return nil
	}

	result := &BestOffer{
		Listing: *chosen,
		Reason:  reason,
		Source:  source,
		Query:   query,
	}
	p.rankOffers(ctx, result, term, requiredGrams(productName, quantityHint))

	common.LogInfo("Best offer selected",
		zap.String("product", productName),
		zap.String("listing", chosen.Name),
		zap.Float64("price", chosen.Price),
		zap.String("source", string(source)),
		zap.String("reason", reason),
	)
	return result
}

// expand 第一階段：擴展查詢，失敗、空白或過長時沿用原詞
func (p *Pipeline) expand(ctx context.Context, term, quantityHint string) ExpandedQuery {
	query := ExpandedQuery{OriginalTerm: term, ExpandedTerm: term}
	if p.assistant == nil {
		return query
	}

	raw, err := p.assistant.Complete(ctx, "query-expansion", buildExpansionPrompt(term, quantityHint), p.opts.ExpansionTimeout)
	if err != nil {
		common.LogDebug("Query expansion unavailable, using original term",
			zap.String("term", term),
			zap.Error(err),
		)
		return query
	}

	expanded := cleanExpansion(raw)
	switch {
	case market.Normalize(expanded) == "":
		common.LogDebug("Query expansion returned empty term", zap.String("term", term))
	case utf8.RuneCountInString(expanded) > p.opts.ExpansionMaxLength:
		common.LogWarn("Query expansion too long, using original term",
			zap.String("term", term),
			zap.Int("length", utf8.RuneCountInString(expanded)),
		)
	default:
		query.ExpandedTerm = expanded
	}
	return query
}

// retrieve 第二階段：第一頁、價格由低到高，保留前 N 筆
func (p *Pipeline) retrieve(ctx context.Context, term string) []market.ProductListing {
	result, err := p.market.Search(ctx, term, 1, market.SortPriceAsc)
	if err != nil {
		common.LogWarn("Candidate retrieval failed",
			zap.String("query", term),
			zap.Error(err),
		)
		return nil
	}
	if result == nil {
		return nil
	}
	candidates := result.Products
	if len(candidates) > p.opts.CandidateLimit {
		candidates = candidates[:p.opts.CandidateLimit]
	}
	return candidates
}

// rank 第三階段：輔助排序，被拒絕或失敗時改用規則式選擇
func (p *Pipeline) rank(ctx context.Context, term, quantityHint string, candidates []market.ProductListing) (*market.ProductListing, string, SelectionSource) {
	if chosen, reason, ok := p.assistRank(ctx, term, quantityHint, candidates); ok {
		return chosen, reason, SourceAssist
	}
	chosen, reason := fallbackSelect(term, candidates, p.exclusions)
	return chosen, reason, SourceFallback
}

func (p *Pipeline) assistRank(ctx context.Context, term, quantityHint string, candidates []market.ProductListing) (*market.ProductListing, string, bool) {
	if p.assistant == nil {
		return nil, "", false
	}

	raw, err := p.assistant.Complete(ctx, "rerank", buildRerankPrompt(term, quantityHint, candidates), p.opts.RerankTimeout)
	if err != nil {
		common.LogDebug("Rerank unavailable, using fallback scorer", zap.Error(err))
		return nil, "", false
	}

	decision, err := parseRerankDecision(raw)
	if err != nil {
		common.LogWarn("Rerank response unparsable, using fallback scorer",
			zap.String("response", common.Truncate(raw, 200)),
			zap.Error(err),
		)
		return nil, "", false
	}
	if !decision.accepted() {
		common.LogInfo("Rerank rejected all candidates, using fallback scorer",
			zap.String("term", term),
			zap.String("reason", decision.Reason),
		)
		return nil, "", false
	}

	idx := int(decision.Index) - 1
	if idx < 0 || idx >= len(candidates) {
		common.LogWarn("Rerank index out of range", zap.Int("index", int(decision.Index)))
		return nil, "", false
	}

	chosen := candidates[idx]
	if kw, hit := p.exclusions.Match(chosen.Name); hit {
		common.LogWarn("Rerank picked excluded candidate, using fallback scorer",
			zap.String("listing", chosen.Name),
			zap.String("keyword", kw),
		)
		return nil, "", false
	}

	reason := strings.TrimSpace(decision.Reason)
	if reason == "" {
		reason = "selected by assist"
	}
	return &chosen, reason, true
}

// rankOffers 取得選定商品的各商家報價並評分；詳細頁不可用時以列表價格作為唯一報價
// detailRef 優先使用列表上的完整商品網址，slug 形式的詳細頁網址無法由 id 重建
func detailRef(l market.ProductListing) string {
	if u := strings.TrimSpace(l.ProductURL); strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return l.ID
}

func (p *Pipeline) rankOffers(ctx context.Context, result *BestOffer, term string, grams float64) {
	listing := result.Listing
	var candidates []OfferCandidate

	if ref := detailRef(listing); ref != "" {
		detail, err := p.market.Product(ctx, ref)
		if err != nil {
			common.LogWarn("Failed to load offers for selected listing",
				zap.String("listing_id", listing.ID),
				zap.String("ref", ref),
				zap.Error(err),
			)
		}
		if detail != nil {
			for _, o := range detail.Offers {
				c := OfferCandidate{
					Name:         listing.Name,
					MerchantName: o.MerchantName,
					Price:        o.Price,
					UnitPrice:    o.UnitPrice,
					URL:          o.URL,
				}
				// 折扣資訊只在列表上，對應到列表最低價那一筆
				if listing.IsOnSale && o.Price == listing.Price {
					c.DiscountPercentage = listing.DiscountPercentage
				}
				candidates = append(candidates, c)
			}
		}
	}

	if len(candidates) == 0 {
		candidates = append(candidates, OfferCandidate{
			Name:               listing.Name,
			MerchantName:       listing.MerchantName,
			Price:              listing.Price,
			UnitPrice:          listing.UnitPrice,
			DiscountPercentage: listing.DiscountPercentage,
			URL:                listing.ProductURL,
		})
	}

	scorer := OfferScorer{IngredientName: term, RequiredGrams: grams}
	result.Offers = scorer.Rank(candidates)
	if best, ok := scorer.Best(candidates); ok {
		result.BestOffer = &best
	}
}

// requiredGrams 優先使用數量提示，其次為食材描述中的明確數量；皆無時為 0（未知）
func requiredGrams(productName, quantityHint string) float64 {
	if r, ok := ingredient.ParseQuantityHint(quantityHint); ok {
		return r.QuantityInGrams
	}
	if r, ok := ingredient.ParseQuantityHint(productName); ok {
		return r.QuantityInGrams
	}
	return 0
}

func logStage(stage Stage, product string, fields ...zap.Field) {
	common.LogDebug("Matching stage",
		append([]zap.Field{zap.String("stage", string(stage)), zap.String("product", product)}, fields...)...,
	)
}
