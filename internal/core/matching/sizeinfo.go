package matching

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"price-discovery/internal/core/ingredient"
)

// ProductSizeInfo 從商品名稱解析出的包裝大小
type ProductSizeInfo struct {
	// SizeInGrams 整包總量（液體以 1 ml = 1 g 計）
	SizeInGrams float64 `json:"size_in_grams"`
	Unit        string  `json:"unit"`
	PackCount   int     `json:"pack_count"`
}

const (
	sizeUnitExpr = `(kg|kilo|gram|gr|g|ml|cl|litre|lt|l)`
	// 單位後面不可緊接字母，避免 "6 lı" 被當成 6 公升
	unitEnd = `(?:[^\p{L}\p{N}]|$)`
)

var (
	// 6x200 ml、6 x 1 L
	multiPackRe = regexp.MustCompile(`(\d+)\s*[x×*]\s*(\d+(?:[.,]\d+)?)\s*` + sizeUnitExpr + unitEnd)
	// 200 ml x 6
	multiPackSuffixRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*` + sizeUnitExpr + `\s*[x×*]\s*(\d+)\b`)
	singleSizeRe      = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*` + sizeUnitExpr + unitEnd)
	// 30'lu yumurta、10 adet
	countPackRe = regexp.MustCompile(`(\d+)\s*['’]?\s*(?:l[ıiuü]|adet)(?:\s|$)`)
)

var sizeUnitGrams = map[string]float64{
	"kg": 1000, "kilo": 1000,
	"gram": 1, "gr": 1, "g": 1,
	"ml": 1, "cl": 10,
	"litre": 1000, "lt": 1000, "l": 1000,
}

func sizeUnitKind(unit string) string {
	switch unit {
	case "ml", "cl", "litre", "lt", "l":
		return "ml"
	}
	return "g"
}

// ParseProductSize 解析商品名稱中的容量，找不到時回傳 false
func ParseProductSize(name string) (ProductSizeInfo, bool) {
	s := strings.ToLowerSpecial(unicode.TurkishCase, name)

	if m := multiPackRe.FindStringSubmatch(s); m != nil {
		count, _ := strconv.Atoi(m[1])
		if size := parseSize(m[2], m[3]); count > 0 && size > 0 {
			return ProductSizeInfo{SizeInGrams: size * float64(count), Unit: sizeUnitKind(m[3]), PackCount: count}, true
		}
	}
	if m := multiPackSuffixRe.FindStringSubmatch(s); m != nil {
		count, _ := strconv.Atoi(m[3])
		if size := parseSize(m[1], m[2]); count > 0 && size > 0 {
			return ProductSizeInfo{SizeInGrams: size * float64(count), Unit: sizeUnitKind(m[2]), PackCount: count}, true
		}
	}
	if m := singleSizeRe.FindStringSubmatch(s); m != nil {
		if size := parseSize(m[1], m[2]); size > 0 {
			return ProductSizeInfo{SizeInGrams: size, Unit: sizeUnitKind(m[2]), PackCount: 1}, true
		}
	}
	if m := countPackRe.FindStringSubmatch(s); m != nil {
		if count, _ := strconv.Atoi(m[1]); count > 0 {
			return ProductSizeInfo{
				SizeInGrams: float64(count) * ingredient.GramsPerCount(s),
				Unit:        "count",
				PackCount:   count,
			}, true
		}
	}
	return ProductSizeInfo{}, false
}

func parseSize(raw, unit string) float64 {
	v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v * sizeUnitGrams[unit]
}
