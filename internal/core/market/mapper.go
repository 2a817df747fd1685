package market

import (
	"math"
	"net/url"
	"path"
	"sort"
	"strings"

	"price-discovery/internal/core/extract"
	"price-discovery/internal/pkg/common"

	"go.uber.org/zap"
)

// sourcePreference 合併時的來源優先序，整頁狀態通常最完整
var sourcePreference = []extract.Strategy{
	extract.StrategyAppState,
	extract.StrategyScriptRegex,
	extract.StrategyLinkedData,
}

// Mapper 將中介紀錄轉為商品實體
type Mapper struct {
	urls URLBuilder
}

// NewMapper 創建 mapper
func NewMapper(urls URLBuilder) *Mapper {
	return &Mapper{urls: urls}
}

// orderedRecords 依來源優先序排列紀錄，同來源保持原順序
func orderedRecords(page extract.Page) []extract.RawProduct {
	out := make([]extract.RawProduct, 0, len(page.Products))
	for _, src := range sourcePreference {
		out = append(out, page.BySource(src)...)
	}
	return out
}

func recordKey(rp extract.RawProduct) string {
	if rp.ID != "" {
		return "id:" + rp.ID
	}
	return "name:" + Normalize(rp.Name)
}

// Listings 合併並驗證搜尋結果。缺少名稱、網址或正價格的紀錄會被捨棄。
func (m *Mapper) Listings(page extract.Page) []ProductListing {
	merged := make(map[string]*extract.RawProduct)
	var order []string

	for _, rp := range orderedRecords(page) {
		if rp.Name == "" {
			continue
		}
		key := recordKey(rp)
		if existing, ok := merged[key]; ok {
			fillMissing(existing, rp)
			continue
		}
		copied := rp
		merged[key] = &copied
		order = append(order, key)
	}

	listings := make([]ProductListing, 0, len(order))
	for _, key := range order {
		rp := merged[key]
		listing, ok := m.listing(*rp)
		if !ok {
			common.LogDebug("Dropping incomplete listing",
				zap.String("name", rp.Name),
				zap.String("url", rp.URL),
				zap.String("source", string(rp.Source)),
			)
			continue
		}
		listings = append(listings, listing)
	}
	return listings
}

func (m *Mapper) listing(rp extract.RawProduct) (ProductListing, bool) {
	productURL := m.productURL(rp)
	if rp.Name == "" || productURL == "" {
		return ProductListing{}, false
	}

	price := minPositive(rp.Price, offerPrices(rp.Offers)...)
	if price <= 0 {
		return ProductListing{}, false
	}

	l := ProductListing{
		ID:           rp.ID,
		Name:         rp.Name,
		Price:        price,
		UnitPrice:    positive(rp.UnitPrice),
		MerchantID:   rp.MerchantID,
		MerchantName: rp.MerchantName,
		Brand:        rp.Brand,
		Quantity:     positive(rp.Quantity),
		Unit:         rp.Unit,
		ImageURL:     m.urls.Resolve(rp.ImageURL),
		ProductURL:   productURL,
	}
	if l.ID == "" {
		l.ID = idFromProductURL(productURL)
	}
	// 最低價來自某一商家報價時，以該商家為代表
	if l.MerchantName == "" {
		for _, o := range rp.Offers {
			if o.Price == price {
				l.MerchantID, l.MerchantName = o.MerchantID, o.MerchantName
				break
			}
		}
	}

	applyDiscount(&l, rp)
	return l, true
}

// applyDiscount 推導是否特價與折扣百分比
func applyDiscount(l *ProductListing, rp extract.RawProduct) {
	if rp.OriginalPrice > l.Price {
		l.OriginalPrice = rp.OriginalPrice
	}
	switch {
	case rp.Discount > 0:
		l.DiscountPercentage = math.Min(rp.Discount, 100)
	case l.OriginalPrice > 0:
		l.DiscountPercentage = math.Round((l.OriginalPrice-l.Price)/l.OriginalPrice*1000) / 10
	}
	l.IsOnSale = l.DiscountPercentage > 0
}

// Detail 合併詳細頁紀錄；沒有任何具名紀錄時回傳 nil
func (m *Mapper) Detail(page extract.Page, id string) *ProductDetail {
	records := orderedRecords(page)
	// 詳細頁可能夾帶相關商品列表，有詳細紀錄時只用詳細紀錄
	var details []extract.RawProduct
	for _, rp := range records {
		if rp.Kind == extract.KindDetail {
			details = append(details, rp)
		}
	}
	if len(details) > 0 {
		records = details
	}

	var base *extract.RawProduct
	for i := range records {
		if records[i].Name == "" {
			continue
		}
		if base == nil {
			copied := records[i]
			base = &copied
			continue
		}
		fillMissing(base, records[i])
	}
	if base == nil {
		return nil
	}

	detail := &ProductDetail{
		ID:           id,
		Name:         base.Name,
		Description:  base.Description,
		Brand:        base.Brand,
		ImageURL:     m.urls.Resolve(base.ImageURL),
		ProductURL:   m.productURL(*base),
		Specs:        mapSpecs(base.Specs),
		PriceHistory: []PricePoint{},
		Offers:       []MarketOffer{},
	}
	if detail.ID == "" {
		detail.ID = base.ID
	}

	for _, o := range base.Offers {
		if o.Price <= 0 {
			continue
		}
		detail.Offers = append(detail.Offers, MarketOffer{
			MerchantID:   o.MerchantID,
			MerchantName: o.MerchantName,
			Price:        o.Price,
			UnitPrice:    positive(o.UnitPrice),
			URL:          m.urls.Resolve(o.URL),
		})
	}
	// 詳細頁只有單一價格時，視為一筆報價
	if len(detail.Offers) == 0 && base.Price > 0 {
		detail.Offers = append(detail.Offers, MarketOffer{
			MerchantID:   base.MerchantID,
			MerchantName: base.MerchantName,
			Price:        base.Price,
			UnitPrice:    positive(base.UnitPrice),
		})
	}
	sort.SliceStable(detail.Offers, func(i, j int) bool {
		return detail.Offers[i].Price < detail.Offers[j].Price
	})

	for _, h := range base.PriceHistory {
		if h.Price <= 0 {
			continue
		}
		detail.PriceHistory = append(detail.PriceHistory, PricePoint{Date: h.Date, Price: h.Price})
	}
	return detail
}

// fillMissing 以較低優先序的紀錄補齊空欄位，不覆寫已有值
func fillMissing(dst *extract.RawProduct, src extract.RawProduct) {
	if dst.ID == "" {
		dst.ID = src.ID
	}
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.Brand == "" {
		dst.Brand = src.Brand
	}
	if dst.ImageURL == "" {
		dst.ImageURL = src.ImageURL
	}
	if dst.URL == "" {
		dst.URL = src.URL
	}
	if dst.Price <= 0 {
		dst.Price = src.Price
	}
	if dst.OriginalPrice <= 0 {
		dst.OriginalPrice = src.OriginalPrice
	}
	if dst.UnitPrice <= 0 {
		dst.UnitPrice = src.UnitPrice
	}
	if dst.Discount <= 0 {
		dst.Discount = src.Discount
	}
	if dst.Quantity <= 0 {
		dst.Quantity = src.Quantity
		dst.Unit = src.Unit
	}
	if dst.MerchantName == "" {
		dst.MerchantID = src.MerchantID
		dst.MerchantName = src.MerchantName
	}
	if len(dst.Offers) == 0 {
		dst.Offers = src.Offers
	}
	if len(dst.PriceHistory) == 0 {
		dst.PriceHistory = src.PriceHistory
	}
	if len(dst.Specs) == 0 {
		dst.Specs = src.Specs
	}
}

func (m *Mapper) productURL(rp extract.RawProduct) string {
	if u := m.urls.Resolve(rp.URL); u != "" {
		return u
	}
	if rp.ID != "" && m.urls.DetailURLTemplate != "" {
		return m.urls.Resolve(m.urls.BuildDetailURL(rp.ID))
	}
	return ""
}

func mapSpecs(groups []extract.RawSpecGroup) []SpecGroup {
	out := make([]SpecGroup, 0, len(groups))
	for _, g := range groups {
		sg := SpecGroup{Title: g.Title, Items: make([]Spec, 0, len(g.Items))}
		for _, it := range g.Items {
			sg.Items = append(sg.Items, Spec{Name: it.Name, Value: it.Value})
		}
		out = append(out, sg)
	}
	return out
}

func offerPrices(offers []extract.RawOffer) []float64 {
	prices := make([]float64, 0, len(offers))
	for _, o := range offers {
		prices = append(prices, o.Price)
	}
	return prices
}

// minPositive 取所有正值中的最小值，沒有正值時回傳 0
func minPositive(first float64, rest ...float64) float64 {
	min := 0.0
	for _, v := range append([]float64{first}, rest...) {
		if v > 0 && (min == 0 || v < min) {
			min = v
		}
	}
	return min
}

func positive(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

func idFromProductURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(parsed.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
