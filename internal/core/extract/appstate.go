package extract

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"price-discovery/internal/pkg/common"

	"go.uber.org/zap"
)

var (
	errNoAppState      = errors.New("app-state script not found")
	errAppStateNoMatch = errors.New("app-state has no known product path")
)

const appStateSelector = `script#__NEXT_DATA__`

// namedPath 已知的整頁狀態路徑
type namedPath struct {
	name string
	path string
}

// appStateListPaths 搜尋結果頁的商品陣列，依序嘗試
var appStateListPaths = []namedPath{
	{"search-result", "props.pageProps.searchResult.products"},
	{"search-results", "props.pageProps.searchResults.products"},
	{"search-items", "props.pageProps.searchResult.items"},
	{"initial-search", "props.pageProps.initialState.search.products"},
	{"page-data", "props.pageProps.data.products"},
}

// appStateDetailPaths 商品詳細頁的商品物件，依序嘗試
var appStateDetailPaths = []namedPath{
	{"product", "props.pageProps.product"},
	{"product-detail", "props.pageProps.productDetail"},
	{"initial-product", "props.pageProps.initialState.product.data"},
	{"page-data-product", "props.pageProps.data.product"},
}

// appStateTotalPagePaths 總頁數欄位
var appStateTotalPagePaths = []namedPath{
	{"search-result", "props.pageProps.searchResult.totalPages"},
	{"search-result-pagination", "props.pageProps.searchResult.pagination.totalPages"},
	{"search-results", "props.pageProps.searchResults.totalPages"},
	{"pagination", "props.pageProps.pagination.totalPages"},
	{"initial-search", "props.pageProps.initialState.search.totalPages"},
	{"page-data", "props.pageProps.data.totalPages"},
}

var nextDataPattern = regexp.MustCompile(`(?is)<script[^>]*id=["']__NEXT_DATA__["'][^>]*>(.*?)</script>`)

// parseAppStateDOM 由 DOM 取出整頁狀態
func parseAppStateDOM(in *input) (map[string]any, error) {
	if in.doc == nil {
		return nil, errNoAppState
	}
	node := in.doc.Find(appStateSelector).First()
	if node.Length() == 0 {
		return nil, errNoAppState
	}
	return decodeAppState(node.Text())
}

// parseAppStateRegex 直接對原始 HTML 做正規表示式比對
func parseAppStateRegex(in *input) (map[string]any, error) {
	m := nextDataPattern.FindStringSubmatch(in.raw)
	if len(m) < 2 {
		return nil, errNoAppState
	}
	state, err := decodeAppState(m[1])
	if err == nil {
		return state, nil
	}
	// 寬鬆修復：未加引號的鍵、結尾逗號
	repaired := trailingCommaPattern.ReplaceAllString(common.QuoteJSONKeys(normalizeJSONBlock(m[1])), "$1")
	var state2 map[string]any
	if err2 := common.ParseJSON(repaired, &state2); err2 != nil {
		return nil, fmt.Errorf("decode app-state: %w", err)
	}
	return state2, nil
}

var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

func decodeAppState(text string) (map[string]any, error) {
	block := normalizeJSONBlock(text)
	if block == "" {
		return nil, errNoAppState
	}
	var state map[string]any
	if err := common.ParseJSON(block, &state); err != nil {
		return nil, fmt.Errorf("decode app-state: %w", err)
	}
	return state, nil
}

// extractAppState DOM 方式解析整頁狀態
func extractAppState(in *input) ([]RawProduct, error) {
	state, err := parseAppStateDOM(in)
	if err != nil {
		return nil, err
	}
	in.state = state
	return productsFromAppState(state, StrategyAppState)
}

// extractScriptRegex 只在 DOM 方式失敗時執行
func extractScriptRegex(in *input) ([]RawProduct, error) {
	state, err := parseAppStateRegex(in)
	if err != nil {
		return nil, err
	}
	in.state = state
	return productsFromAppState(state, StrategyScriptRegex)
}

// productsFromAppState 依路徑表取出商品。詳細頁常同時帶有相關商品列表，
// 詳細紀錄排在最前面，列表紀錄其後。
func productsFromAppState(state map[string]any, source Strategy) ([]RawProduct, error) {
	var products []RawProduct
	if p, ok := detailFromAppState(state, source); ok {
		products = append(products, p)
	}

	for _, np := range appStateListPaths {
		v, ok := lookup(state, np.path)
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		common.LogDebug("App-state path matched", zap.String("path", np.name), zap.Int("items", len(list)))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if p, ok := productFromAppState(m, source, KindListing); ok {
				products = append(products, p)
			}
		}
		return products, nil
	}

	if len(products) == 0 {
		return nil, errAppStateNoMatch
	}
	return products, nil
}

func detailFromAppState(state map[string]any, source Strategy) (RawProduct, bool) {
	for _, np := range appStateDetailPaths {
		v, ok := lookup(state, np.path)
		if !ok {
			continue
		}
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := productFromAppState(m, source, KindDetail); ok {
			common.LogDebug("App-state path matched", zap.String("path", np.name))
			return p, true
		}
	}
	return RawProduct{}, false
}

func productFromAppState(m map[string]any, source Strategy, kind Kind) (RawProduct, bool) {
	p := RawProduct{
		Source:        source,
		Kind:          kind,
		ID:            stringOf(m, "id", "productId", "_id", "sku"),
		Name:          stringOf(m, "name", "title", "productName"),
		Description:   stringOf(m, "description", "shortDescription"),
		Brand:         stringOf(m, "brand", "brandName"),
		ImageURL:      firstImage(firstPresent(m, "imageUrl", "imageURL", "image", "images", "thumbnail")),
		URL:           stringOf(m, "url", "productUrl", "link", "href", "path", "slug"),
		Price:         numberOf(m, "price", "minPrice", "lowestPrice", "lowPrice", "salePrice"),
		OriginalPrice: numberOf(m, "originalPrice", "oldPrice", "listPrice", "strikethroughPrice"),
		UnitPrice:     numberOf(m, "unitPrice", "pricePerUnit"),
		Discount:      numberOf(m, "discountRate", "discountPercentage", "discount"),
		Quantity:      numberOf(m, "quantity", "unitValue", "size"),
		Unit:          stringOf(m, "unit", "unitName", "unitType"),
		MerchantID:    stringOf(m, "merchantId", "merchant.id", "seller.id"),
		MerchantName:  stringOf(m, "merchantName", "merchant.name", "merchant", "seller.name"),
	}
	if p.Name == "" {
		return RawProduct{}, false
	}

	for _, o := range listOf(m, "offers", "merchantOffers", "prices") {
		om, ok := o.(map[string]any)
		if !ok {
			continue
		}
		p.Offers = append(p.Offers, RawOffer{
			MerchantID:   stringOf(om, "merchantId", "merchant.id", "seller.id"),
			MerchantName: stringOf(om, "merchantName", "merchant.name", "merchant", "seller.name", "name"),
			Price:        numberOf(om, "price", "amount", "value"),
			UnitPrice:    numberOf(om, "unitPrice", "pricePerUnit"),
			URL:          stringOf(om, "url", "link", "redirectUrl"),
		})
	}

	for _, h := range listOf(m, "priceHistory", "priceHistories", "history") {
		hm, ok := h.(map[string]any)
		if !ok {
			continue
		}
		p.PriceHistory = append(p.PriceHistory, RawPricePoint{
			Date:  stringOf(hm, "date", "day", "createdAt"),
			Price: numberOf(hm, "price", "minPrice", "value"),
		})
	}

	p.Specs = specsFromAppState(firstPresent(m, "specs", "specifications", "features"))

	if p.ID == "" {
		p.ID = idFromURL(p.URL)
	}
	return p, true
}

// specsFromAppState 支援 [{title, items:[{name,value}]}] 與 {name: value} 兩種形狀
func specsFromAppState(v any) []RawSpecGroup {
	switch val := v.(type) {
	case []any:
		var groups []RawSpecGroup
		for _, g := range val {
			gm, ok := g.(map[string]any)
			if !ok {
				continue
			}
			group := RawSpecGroup{Title: stringOf(gm, "title", "name", "groupName")}
			for _, it := range listOf(gm, "items", "specs", "values") {
				im, ok := it.(map[string]any)
				if !ok {
					continue
				}
				name := stringOf(im, "name", "key", "title")
				value := stringOf(im, "value", "text")
				if name != "" && value != "" {
					group.Items = append(group.Items, RawSpec{Name: name, Value: value})
				}
			}
			if len(group.Items) > 0 {
				groups = append(groups, group)
			}
		}
		return groups
	case map[string]any:
		group := RawSpecGroup{}
		for k, raw := range val {
			if s := toString(raw); s != "" {
				group.Items = append(group.Items, RawSpec{Name: k, Value: s})
			}
		}
		if len(group.Items) == 0 {
			return nil
		}
		sortSpecs(group.Items)
		return []RawSpecGroup{group}
	}
	return nil
}

func sortSpecs(items []RawSpec) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// appStateTotalPages 由整頁狀態取總頁數
func appStateTotalPages(state map[string]any) int {
	if state == nil {
		return 0
	}
	for _, np := range appStateTotalPagePaths {
		v, ok := lookup(state, np.path)
		if !ok {
			continue
		}
		if n := int(toNumber(v)); n > 0 {
			return n
		}
	}
	return 0
}
