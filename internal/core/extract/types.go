package extract

// Strategy 擷取策略名稱
type Strategy string

const (
	// StrategyLinkedData <script type="application/ld+json"> 區塊
	StrategyLinkedData Strategy = "linked-data"
	// StrategyAppState script#__NEXT_DATA__ 整頁狀態
	StrategyAppState Strategy = "app-state"
	// StrategyScriptRegex 結構解析失敗時，以正規表示式取出 __NEXT_DATA__ 內容
	StrategyScriptRegex Strategy = "script-regex"
)

// Kind 紀錄來源頁面類型
type Kind string

const (
	KindListing Kind = "listing"
	KindDetail  Kind = "detail"
)

// RawOffer 單一商家報價（尚未驗證）
type RawOffer struct {
	MerchantID   string
	MerchantName string
	Price        float64
	UnitPrice    float64
	URL          string
}

// RawPricePoint 價格歷史點（尚未驗證）
type RawPricePoint struct {
	Date  string
	Price float64
}

// RawSpec 規格項目
type RawSpec struct {
	Name  string
	Value string
}

// RawSpecGroup 規格群組
type RawSpecGroup struct {
	Title string
	Items []RawSpec
}

// RawProduct 與頁面無關的中介紀錄，欄位皆為選填
type RawProduct struct {
	Source Strategy
	Kind   Kind

	ID            string
	Name          string
	Description   string
	Brand         string
	ImageURL      string
	URL           string
	Price         float64
	OriginalPrice float64
	UnitPrice     float64
	Discount      float64
	Quantity      float64
	Unit          string
	MerchantID    string
	MerchantName  string

	Offers       []RawOffer
	PriceHistory []RawPricePoint
	Specs        []RawSpecGroup
}

// Page 單頁擷取結果
type Page struct {
	// Products 依策略順序排列
	Products []RawProduct
	// TotalPages 0 表示未知
	TotalPages int
	// Strategies 實際產出資料的策略
	Strategies []Strategy
}

// BySource 取出指定策略產出的紀錄
func (p Page) BySource(s Strategy) []RawProduct {
	var out []RawProduct
	for _, rp := range p.Products {
		if rp.Source == s {
			out = append(out, rp)
		}
	}
	return out
}
