package matching

import (
	"strings"

	"price-discovery/internal/core/market"
)

// stopWords 判斷重要詞時忽略
var stopWords = map[string]bool{
	"ve": true, "ile": true, "icin": true, "adet": true, "paket": true,
	"gram": true, "gr": true, "kg": true, "ml": true, "lt": true, "litre": true,
}

// ExclusionFilter 排除零食、甜點、化妝品等類別。關鍵字以完整詞比對，
// "kek" 不會命中 "kekik"。
type ExclusionFilter struct {
	keywords [][]string
}

// NewExclusionFilter 以設定的關鍵字建立過濾器
func NewExclusionFilter(keywords []string) *ExclusionFilter {
	f := &ExclusionFilter{}
	for _, k := range keywords {
		if words := strings.Fields(market.Normalize(k)); len(words) > 0 {
			f.keywords = append(f.keywords, words)
		}
	}
	return f
}

// Match 回傳命中的關鍵字
func (f *ExclusionFilter) Match(name string) (string, bool) {
	words := strings.Fields(market.Normalize(name))
	for _, kw := range f.keywords {
		if containsSequence(words, kw) {
			return strings.Join(kw, " "), true
		}
	}
	return "", false
}

func containsSequence(words, seq []string) bool {
	for i := 0; i+len(seq) <= len(words); i++ {
		match := true
		for j := range seq {
			if words[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// significantWords 長度至少 3 且非停用詞
func significantWords(term string) []string {
	var out []string
	for _, w := range strings.Fields(market.Normalize(term)) {
		if len([]rune(w)) >= 3 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

// nameMatches 商品名稱包含完整食材名稱，或任一重要詞（允許字尾）
func nameMatches(term, name string) bool {
	normTerm := market.Normalize(term)
	normName := market.Normalize(name)
	if normTerm == "" {
		return false
	}
	if strings.Contains(normName, normTerm) {
		return true
	}
	nameWords := strings.Fields(normName)
	for _, w := range significantWords(term) {
		for _, n := range nameWords {
			if strings.HasPrefix(n, w) {
				return true
			}
		}
	}
	return false
}

// fallbackSelect 規則式選擇：先排除黑名單，再依名稱過濾，取最便宜。
// 名稱過濾後為空時改取排除後最便宜者；排除後為空則沒有可接受的候選。
func fallbackSelect(term string, candidates []market.ProductListing, exclusions *ExclusionFilter) (*market.ProductListing, string) {
	var allowed []market.ProductListing
	for _, c := range candidates {
		if _, hit := exclusions.Match(c.Name); hit {
			continue
		}
		allowed = append(allowed, c)
	}
	if len(allowed) == 0 {
		return nil, "all candidates matched exclusion keywords"
	}

	var named []market.ProductListing
	for _, c := range allowed {
		if nameMatches(term, c.Name) {
			named = append(named, c)
		}
	}
	if len(named) > 0 {
		return cheapest(named), "cheapest candidate matching the ingredient name"
	}
	return cheapest(allowed), "cheapest candidate after exclusion filtering"
}

// cheapest 同價取先出現者
func cheapest(listings []market.ProductListing) *market.ProductListing {
	if len(listings) == 0 {
		return nil
	}
	best := listings[0]
	for _, l := range listings[1:] {
		if l.Price < best.Price {
			best = l
		}
	}
	return &best
}
