package extract

import (
	"strings"
	"unicode/utf8"

	"price-discovery/internal/pkg/common"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// input 單頁解析時各策略共用的狀態
type input struct {
	raw string
	doc *goquery.Document
	// state 任一 app-state 策略成功解析後填入，供分頁使用
	state map[string]any
}

type strategy struct {
	name Strategy
	run  func(in *input) ([]RawProduct, error)
	// fallbackFor 非空時，只在該策略失敗時才執行
	fallbackFor Strategy
}

// strategies 依偏好排序的擷取策略表
var strategies = []strategy{
	{name: StrategyLinkedData, run: extractLinkedData},
	{name: StrategyAppState, run: extractAppState},
	{name: StrategyScriptRegex, run: extractScriptRegex, fallbackFor: StrategyAppState},
}

// Extract 以所有策略解析 HTML。各策略獨立執行，單一策略失敗不影響其他策略。
func Extract(body string) Page {
	html := decodeHTML(body)
	in := &input{raw: html}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		common.LogWarn("HTML parse failed, structural strategies skipped", zap.Error(err))
	} else {
		in.doc = doc
	}

	var page Page
	failed := make(map[Strategy]bool, len(strategies))
	for _, s := range strategies {
		if s.fallbackFor != "" && !failed[s.fallbackFor] {
			continue
		}
		products, err := s.run(in)
		if err != nil {
			failed[s.name] = true
			common.LogDebug("Extraction strategy produced no data",
				zap.String("strategy", string(s.name)),
				zap.Error(err),
			)
			continue
		}
		if len(products) == 0 {
			continue
		}
		page.Products = append(page.Products, products...)
		page.Strategies = append(page.Strategies, s.name)
	}

	page.TotalPages = totalPages(in)
	return page
}

// decodeHTML 非 UTF-8 內容依 meta charset 轉碼
func decodeHTML(body string) string {
	if utf8.ValidString(body) {
		return body
	}
	data := []byte(body)
	enc, name, _ := charset.DetermineEncoding(data, "text/html")
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		common.LogWarn("Charset decode failed",
			zap.String("charset", name),
			zap.Error(err),
		)
		return strings.ToValidUTF8(body, "")
	}
	return string(decoded)
}
