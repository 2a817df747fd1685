package ingredient

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Unit 標準化後的單位
type Unit string

const (
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitMilliliter Unit = "ml"
	UnitLiter      Unit = "l"
	UnitCount      Unit = "count"
	UnitCup        Unit = "cup"
	UnitTeaGlass   Unit = "tea_glass"
	UnitTablespoon Unit = "tbsp"
	UnitDessert    Unit = "dsp"
	UnitTeaspoon   Unit = "tsp"
	UnitPinch      Unit = "pinch"
	UnitClove      Unit = "clove"
	UnitBunch      Unit = "bunch"
)

// DefaultGramsPerCount 查不到單顆重量時的預設值
const DefaultGramsPerCount = 100.0

// Requirement 食材需求
type Requirement struct {
	OriginalText    string  `json:"original_text"`
	Name            string  `json:"name"`
	Quantity        float64 `json:"quantity"`
	Unit            Unit    `json:"unit"`
	QuantityInGrams float64 `json:"quantity_in_grams"`
}

// unitPattern 數量 + 單位規則，gramsPerUnit 為 0 表示依食材查表
type unitPattern struct {
	unit         Unit
	pattern      string
	gramsPerUnit float64
}

// 依序比對，多字單位必須排在單字單位前
var unitPatterns = []unitPattern{
	{UnitCup, `su\s+barda[ğg][ıi]`, 200},
	{UnitTeaGlass, `[çc]ay\s+barda[ğg][ıi]`, 100},
	{UnitTablespoon, `yemek\s+ka[şs][ıi][ğg][ıi]|yk`, 15},
	{UnitDessert, `tatl[ıi]\s+ka[şs][ıi][ğg][ıi]|tk`, 10},
	{UnitTeaspoon, `[çc]ay\s+ka[şs][ıi][ğg][ıi]|[çc]k`, 5},
	{UnitKilogram, `kg|kilogram|kilo`, 1000},
	{UnitGram, `gram|gr|g`, 1},
	{UnitMilliliter, `mililitre|ml`, 1},
	{UnitLiter, `litre|lt|l`, 1000},
	{UnitPinch, `tutam`, 2},
	{UnitClove, `di[şs]`, 5},
	{UnitBunch, `demet`, 50},
	{UnitCount, `adet|tane`, 0},
}

// quantityExpr 1 / 1,5 / 1.5 / 1/2 / 1 1/2 / yarım / 2-3
const quantityExpr = `(\d+\s+\d+/\d+|\d+/\d+|\d+(?:[.,]\d+)?|yar[ıi]m|[çc]eyrek|bir|iki|[üu][çc]|d[öo]rt|be[şs])(?:\s*-\s*(\d+(?:[.,]\d+)?))?`

type compiledPattern struct {
	unitPattern
	re *regexp.Regexp
}

var (
	compiledPatterns = compileUnitPatterns()
	bareNumberRe     = regexp.MustCompile(`^` + quantityExpr + `\s+(.+)$`)
	parentheticalRe  = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	fillerRe         = regexp.MustCompile(`^(?:yakla[şs][ıi]k|~|en az)\s*`)
)

// turkishLower 以土耳其語規則轉小寫；Caser 不可跨 goroutine 共用
func turkishLower(s string) string {
	return cases.Lower(language.Turkish).String(s)
}

func compileUnitPatterns() []compiledPattern {
	out := make([]compiledPattern, 0, len(unitPatterns))
	for _, p := range unitPatterns {
		out = append(out, compiledPattern{
			unitPattern: p,
			re:          regexp.MustCompile(`^` + quantityExpr + `\s*(?:` + p.pattern + `)\.?(?:\s+(.*))?$`),
		})
	}
	return out
}

var quantityWords = map[string]float64{
	"yarım": 0.5, "yarim": 0.5,
	"çeyrek": 0.25, "ceyrek": 0.25,
	"bir": 1, "iki": 2, "üç": 3, "uc": 3, "dört": 4, "dort": 4, "beş": 5, "bes": 5,
}

// Parse 解析食材描述，例如 "200 gram makarna"、"2 su bardağı un"、"3 yumurta"。
// 無法辨識數量時視為 1 個。
func Parse(text string) Requirement {
	req := Requirement{OriginalText: text}
	cleaned := clean(text)

	if r, ok := parseWithUnit(cleaned); ok {
		r.OriginalText = text
		return r
	}

	if m := bareNumberRe.FindStringSubmatch(cleaned); m != nil {
		if q := parseQuantity(m[1], m[2]); q > 0 {
			req.Name = strings.TrimSpace(m[3])
			req.Quantity = q
			req.Unit = UnitCount
			req.QuantityInGrams = q * GramsPerCount(req.Name)
			return req
		}
	}

	req.Name = cleaned
	req.Quantity = 1
	req.Unit = UnitCount
	req.QuantityInGrams = GramsPerCount(cleaned)
	return req
}

// ParseQuantityHint 解析 "1L"、"500 g"、"2 adet" 這類數量提示；沒有單位時回傳 false
func ParseQuantityHint(hint string) (Requirement, bool) {
	cleaned := clean(hint)
	if cleaned == "" {
		return Requirement{}, false
	}
	r, ok := parseWithUnit(cleaned)
	if !ok {
		return Requirement{}, false
	}
	r.OriginalText = hint
	return r, true
}

func parseWithUnit(cleaned string) (Requirement, bool) {
	for _, p := range compiledPatterns {
		m := p.re.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		q := parseQuantity(m[1], m[2])
		if q <= 0 {
			continue
		}
		r := Requirement{
			Name:     strings.TrimSpace(m[3]),
			Quantity: q,
			Unit:     p.unit,
		}
		if p.gramsPerUnit > 0 {
			r.QuantityInGrams = q * p.gramsPerUnit
		} else {
			r.QuantityInGrams = q * GramsPerCount(r.Name)
		}
		return r, true
	}
	return Requirement{}, false
}

// clean 去除括號補充、冒號後的份量建議與常見贅字
func clean(text string) string {
	s := turkishLower(text)
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = parentheticalRe.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	s = fillerRe.ReplaceAllString(s, "")
	return strings.Trim(s, " ,;.-*•")
}

// parseQuantity 解析數量；範圍取上限
func parseQuantity(raw, upper string) float64 {
	if upper != "" {
		if v := parseNumber(upper); v > 0 {
			return v
		}
	}
	return parseNumber(raw)
}

func parseNumber(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if v, ok := quantityWords[raw]; ok {
		return v
	}

	// 帶分數 "1 1/2"
	if whole, frac, ok := strings.Cut(raw, " "); ok {
		return parseNumber(whole) + parseNumber(frac)
	}
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}

	v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return v
}
