package matching

import (
	"math"
	"sort"
	"strings"

	"price-discovery/internal/core/market"
)

// 權重與價格上限
const (
	quantityWeight   = 0.4
	unitPriceWeight  = 0.3
	nameWeight       = 0.1
	maxDiscountBonus = 20.0

	highPriceCeiling     = 300.0
	highPricePenalty     = 20.0
	veryHighPriceCeiling = 500.0
	veryHighPricePenalty = 40.0

	neutralComponent = 50.0
)

// OfferCandidate 待評分的商家報價
type OfferCandidate struct {
	Name               string  `json:"name"`
	MerchantName       string  `json:"merchant_name"`
	Price              float64 `json:"price"`
	UnitPrice          float64 `json:"unit_price,omitempty"`
	DiscountPercentage float64 `json:"discount_percentage,omitempty"`
	URL                string  `json:"url,omitempty"`
}

// ScoreBreakdown 各分項分數（0–100，折扣為 0–20 加分）
type ScoreBreakdown struct {
	QuantityFit    float64 `json:"quantity_fit"`
	UnitPrice      float64 `json:"unit_price"`
	DiscountBonus  float64 `json:"discount_bonus"`
	NameSimilarity float64 `json:"name_similarity"`
	PricePenalty   float64 `json:"price_penalty"`
}

// ScoredOffer 評分結果
type ScoredOffer struct {
	Offer     OfferCandidate   `json:"offer"`
	Score     float64          `json:"score"`
	SizeInfo  *ProductSizeInfo `json:"size_info,omitempty"`
	Breakdown ScoreBreakdown   `json:"breakdown"`
}

// OfferScorer 在同一商品的多個商家報價中挑選。
// RequiredGrams 為 0 時數量適配給中性分數。
type OfferScorer struct {
	IngredientName string
	RequiredGrams  float64
}

// Score 計算單一報價分數
func (s OfferScorer) Score(o OfferCandidate) ScoredOffer {
	var size *ProductSizeInfo
	if info, ok := ParseProductSize(o.Name); ok {
		size = &info
	}

	b := ScoreBreakdown{
		QuantityFit:    quantityFitScore(size, s.RequiredGrams),
		UnitPrice:      unitPriceScore(o, size),
		DiscountBonus:  math.Min(math.Max(o.DiscountPercentage, 0), 100) / 100 * maxDiscountBonus,
		NameSimilarity: wordOverlap(s.IngredientName, o.Name) * 100,
		PricePenalty:   pricePenalty(o.Price),
	}

	score := quantityWeight*b.QuantityFit +
		unitPriceWeight*b.UnitPrice +
		b.DiscountBonus +
		nameWeight*b.NameSimilarity -
		b.PricePenalty

	return ScoredOffer{Offer: o, Score: score, SizeInfo: size, Breakdown: b}
}

// Rank 依分數由高到低排序；同分維持原順序
func (s OfferScorer) Rank(offers []OfferCandidate) []ScoredOffer {
	scored := make([]ScoredOffer, 0, len(offers))
	for _, o := range offers {
		scored = append(scored, s.Score(o))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// Best 回傳最高分報價，同分取先出現者
func (s OfferScorer) Best(offers []OfferCandidate) (ScoredOffer, bool) {
	var best ScoredOffer
	found := false
	for _, o := range offers {
		scored := s.Score(o)
		if !found || scored.Score > best.Score {
			best = scored
			found = true
		}
	}
	return best, found
}

// quantityFitScore 包裝量 / 需求量：0.8–2.5 倍最佳，超過 6 倍視為浪費，不足 0.3 倍視為不夠
func quantityFitScore(size *ProductSizeInfo, required float64) float64 {
	if size == nil || size.SizeInGrams <= 0 || required <= 0 {
		return neutralComponent
	}
	ratio := size.SizeInGrams / required
	switch {
	case ratio < 0.3:
		return 10
	case ratio < 0.8:
		return 40 + (ratio-0.3)/0.5*60
	case ratio <= 2.5:
		return 100
	case ratio <= 6:
		return 100 - (ratio-2.5)/3.5*60
	default:
		return 10
	}
}

// unitPriceScore 每公斤（公升）價格分級
func unitPriceScore(o OfferCandidate, size *ProductSizeInfo) float64 {
	perKg := 0.0
	switch {
	case size != nil && size.SizeInGrams > 0 && o.Price > 0:
		perKg = o.Price / (size.SizeInGrams / 1000)
	case o.UnitPrice > 0:
		perKg = o.UnitPrice
	default:
		return neutralComponent
	}

	switch {
	case perKg < 50:
		return 100
	case perKg < 100:
		return 80
	case perKg < 200:
		return 60
	case perKg < 400:
		return 40
	default:
		return 20
	}
}

func pricePenalty(price float64) float64 {
	switch {
	case price > veryHighPriceCeiling:
		return veryHighPricePenalty
	case price > highPriceCeiling:
		return highPricePenalty
	}
	return 0
}

// wordOverlap 需求名稱中有多少比例的詞出現在商品名稱（允許土耳其語字尾）
func wordOverlap(want, name string) float64 {
	wantWords := strings.Fields(market.Normalize(want))
	if len(wantWords) == 0 {
		return 0
	}
	nameWords := strings.Fields(market.Normalize(name))

	matched := 0
	for _, w := range wantWords {
		for _, n := range nameWords {
			if strings.HasPrefix(n, w) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(wantWords))
}
