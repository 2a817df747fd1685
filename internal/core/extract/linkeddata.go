package extract

import (
	"errors"
	"strings"

	"price-discovery/internal/pkg/common"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var errNoLinkedData = errors.New("no linked-data blocks")

// extractLinkedData 解析所有 ld+json 區塊，取出 Product / ItemList / Offer
func extractLinkedData(in *input) ([]RawProduct, error) {
	if in.doc == nil {
		return nil, errNoLinkedData
	}

	blocks := in.doc.Find(`script[type="application/ld+json"]`)
	if blocks.Length() == 0 {
		return nil, errNoLinkedData
	}

	var products []RawProduct
	blocks.Each(func(i int, s *goquery.Selection) {
		block := normalizeJSONBlock(s.Text())
		if block == "" {
			return
		}
		var payload any
		if err := common.ParseJSON(block, &payload); err != nil {
			// 單一區塊壞掉不影響其他區塊
			common.LogDebug("Skipping malformed linked-data block",
				zap.Int("index", i),
				zap.Error(err),
			)
			return
		}
		products = append(products, walkLinkedData(payload, KindDetail)...)
	})
	return products, nil
}

// walkLinkedData 遞迴走訪 @graph、陣列與 ItemList
func walkLinkedData(data any, kind Kind) []RawProduct {
	switch v := data.(type) {
	case []any:
		var out []RawProduct
		for _, item := range v {
			out = append(out, walkLinkedData(item, kind)...)
		}
		return out

	case map[string]any:
		if graph, ok := v["@graph"]; ok {
			return walkLinkedData(graph, kind)
		}
		switch {
		case hasType(v, "ItemList"):
			return walkItemList(v)
		case hasType(v, "Product"), hasType(v, "ProductGroup"):
			if p, ok := productFromLinkedData(v, kind); ok {
				return []RawProduct{p}
			}
		}
	}
	return nil
}

func walkItemList(list map[string]any) []RawProduct {
	elements, _ := list["itemListElement"].([]any)
	var out []RawProduct
	for _, el := range elements {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		// ListItem 包裝 { "@type": "ListItem", "item": {...} }
		if item, ok := m["item"].(map[string]any); ok {
			if !hasType(item, "Product") && item["name"] == nil {
				continue
			}
			if p, ok := productFromLinkedData(item, KindListing); ok {
				if p.URL == "" {
					p.URL = stringOf(m, "url")
				}
				out = append(out, p)
			}
			continue
		}
		if hasType(m, "Product") || (hasType(m, "ListItem") && m["name"] != nil) {
			if p, ok := productFromLinkedData(m, KindListing); ok {
				out = append(out, p)
			}
		}
	}
	return out
}

func productFromLinkedData(m map[string]any, kind Kind) (RawProduct, bool) {
	p := RawProduct{
		Source:      StrategyLinkedData,
		Kind:        kind,
		ID:          stringOf(m, "productID", "sku", "@id", "mpn"),
		Name:        stringOf(m, "name"),
		Description: stringOf(m, "description"),
		Brand:       stringOf(m, "brand"),
		ImageURL:    firstImage(m["image"]),
		URL:         stringOf(m, "url"),
	}
	if p.Name == "" {
		return RawProduct{}, false
	}

	switch offers := m["offers"].(type) {
	case map[string]any:
		applyLinkedOffer(&p, offers)
	case []any:
		for _, o := range offers {
			if om, ok := o.(map[string]any); ok {
				applyLinkedOffer(&p, om)
			}
		}
	}

	if p.ID == "" || strings.HasPrefix(p.ID, "http") {
		if id := idFromURL(p.URL); id != "" {
			p.ID = id
		}
	}
	return p, true
}

// applyLinkedOffer 處理 Offer 與 AggregateOffer
func applyLinkedOffer(p *RawProduct, offer map[string]any) {
	if hasType(offer, "AggregateOffer") {
		if low := numberOf(offer, "lowPrice", "price"); low > 0 && (p.Price == 0 || low < p.Price) {
			p.Price = low
		}
		if nested, ok := offer["offers"].([]any); ok {
			for _, o := range nested {
				if om, ok := o.(map[string]any); ok {
					applyLinkedOffer(p, om)
				}
			}
		}
		return
	}

	price := numberOf(offer, "price", "priceSpecification.price", "lowPrice")
	if price > 0 && (p.Price == 0 || price < p.Price) {
		p.Price = price
	}
	p.Offers = append(p.Offers, RawOffer{
		MerchantID:   stringOf(offer, "seller.@id", "seller.identifier"),
		MerchantName: stringOf(offer, "seller.name", "seller", "offeredBy.name"),
		Price:        price,
		URL:          stringOf(offer, "url"),
	})
}

// normalizeJSONBlock 去除前綴指派、註解與結尾分號
func normalizeJSONBlock(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "<!--")
	content = strings.TrimSuffix(content, "-->")
	content = strings.TrimPrefix(content, "//<![CDATA[")
	content = strings.TrimSuffix(content, "//]]>")
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "window.__NEXT_DATA__ =")
	content = strings.TrimPrefix(content, "window.__NEXT_DATA__=")
	content = strings.TrimSuffix(content, ";")
	content = strings.TrimSpace(content)

	start := strings.IndexAny(content, "{[")
	if start == -1 {
		return ""
	}
	end := strings.LastIndexAny(content, "}]")
	if end == -1 || end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}
