package market

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"price-discovery/internal/pkg/common"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SortHint 搜尋排序
type SortHint string

const (
	SortRelevance SortHint = "relevance"
	SortPriceAsc  SortHint = "price_asc"
	SortPriceDesc SortHint = "price_desc"
)

// sortParams 對應到比價網站的 sort 參數
var sortParams = map[SortHint]string{
	SortPriceAsc:  "price-asc",
	SortPriceDesc: "price-desc",
}

// ParseSortHint 解析排序提示，空字串視為相關性排序
func ParseSortHint(s string) (SortHint, error) {
	switch SortHint(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRelevance:
		return SortRelevance, nil
	case SortPriceAsc:
		return SortPriceAsc, nil
	case SortPriceDesc:
		return SortPriceDesc, nil
	}
	return "", common.NewFieldError("sort", fmt.Sprintf("unsupported sort %q", s))
}

// Normalize 轉為小寫（土耳其語規則）並去除變音符號：
// "Süt" → "sut"、"IŞIK" → "isik"、"Çiğ Köfte" → "cig kofte"
func Normalize(term string) string {
	// Caser 有狀態，不可跨 goroutine 共用
	lowered := cases.Lower(language.Turkish).String(term)

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			if r == 'ı' {
				return 'i'
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, lowered)
	if err != nil {
		out = lowered
	}

	// 非字母數字一律視為分隔
	var b strings.Builder
	b.Grow(len(out))
	for _, r := range out {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// URLBuilder 組出搜尋與商品詳細頁網址
type URLBuilder struct {
	BaseURL           string
	SearchURL         string
	DetailURLTemplate string
}

// BuildSearchURL 標準化後的搜尋網址；page 1 不帶頁碼參數
func (b URLBuilder) BuildSearchURL(term string, page int, sort SortHint) string {
	q := url.Values{}
	q.Set("q", Normalize(term))
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	if p, ok := sortParams[sort]; ok {
		q.Set("sort", p)
	}
	sep := "?"
	if strings.Contains(b.SearchURL, "?") {
		sep = "&"
	}
	return b.SearchURL + sep + q.Encode()
}

// BuildDetailURL 以商品 id 套用詳細頁樣板
func (b URLBuilder) BuildDetailURL(id string) string {
	id = strings.Trim(strings.TrimSpace(id), "/")
	return fmt.Sprintf(b.DetailURLTemplate, id)
}

// Resolve 將相對路徑轉為絕對網址，無法解析時回傳空字串
func (b URLBuilder) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	target, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if !target.IsAbs() {
		base, err := url.Parse(b.BaseURL)
		if err != nil || base.Host == "" {
			return ""
		}
		target = base.ResolveReference(target)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return ""
	}
	if target.Host == "" {
		return ""
	}
	return target.String()
}
