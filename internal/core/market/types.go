package market

// ProductListing 搜尋結果中的商品，Price 為各商家最低價
type ProductListing struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Price              float64 `json:"price"`
	UnitPrice          float64 `json:"unit_price,omitempty"`
	MerchantID         string  `json:"merchant_id,omitempty"`
	MerchantName       string  `json:"merchant_name,omitempty"`
	Brand              string  `json:"brand,omitempty"`
	Quantity           float64 `json:"quantity,omitempty"`
	Unit               string  `json:"unit,omitempty"`
	ImageURL           string  `json:"image_url,omitempty"`
	ProductURL         string  `json:"product_url"`
	IsOnSale           bool    `json:"is_on_sale"`
	OriginalPrice      float64 `json:"original_price,omitempty"`
	DiscountPercentage float64 `json:"discount_percentage,omitempty"`
}

// MarketOffer 單一商家的報價，Price 一定大於零
type MarketOffer struct {
	MerchantID   string  `json:"merchant_id,omitempty"`
	MerchantName string  `json:"merchant_name"`
	Price        float64 `json:"price"`
	UnitPrice    float64 `json:"unit_price,omitempty"`
	URL          string  `json:"url,omitempty"`
}

// PricePoint 價格歷史
type PricePoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Spec 規格
type Spec struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SpecGroup 規格群組
type SpecGroup struct {
	Title string `json:"title,omitempty"`
	Items []Spec `json:"items"`
}

// ProductDetail 商品詳細頁
type ProductDetail struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Brand        string        `json:"brand,omitempty"`
	ImageURL     string        `json:"image_url,omitempty"`
	ProductURL   string        `json:"product_url"`
	Specs        []SpecGroup   `json:"specs"`
	PriceHistory []PricePoint  `json:"price_history"`
	Offers       []MarketOffer `json:"offers"`
}

// SearchRequest 單次搜尋請求
type SearchRequest struct {
	RawTerm      string   `json:"raw_term"`
	QuantityHint string   `json:"quantity_hint,omitempty"`
	Page         int      `json:"page"`
	Sort         SortHint `json:"sort,omitempty"`
}

// SearchResult 搜尋結果；TotalPages 為 0 表示未知
type SearchResult struct {
	Query       string           `json:"query"`
	Products    []ProductListing `json:"products"`
	CurrentPage int              `json:"current_page"`
	TotalPages  int              `json:"total_pages"`
}
