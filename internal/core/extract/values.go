package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// lookup 依點號路徑取值，例如 "props.pageProps.product"
func lookup(root any, path string) (any, bool) {
	cur := root
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// stringOf 取第一個非空字串欄位，支援巢狀 "merchant.name"
func stringOf(m map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := lookup(m, key)
		if !ok {
			continue
		}
		if s := toString(v); s != "" {
			return s
		}
	}
	return ""
}

// numberOf 取第一個可解析且大於零的數值欄位
func numberOf(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		v, ok := lookup(m, key)
		if !ok {
			continue
		}
		if n := toNumber(v); n > 0 {
			return n
		}
	}
	return 0
}

// listOf 取第一個非空陣列欄位
func listOf(m map[string]any, keys ...string) []any {
	for _, key := range keys {
		v, ok := lookup(m, key)
		if !ok {
			continue
		}
		if list, ok := v.([]any); ok && len(list) > 0 {
			return list
		}
	}
	return nil
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		// {"name": "..."} 形式，例如 brand
		if s, ok := val["name"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func toNumber(v any) float64 {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0
		}
		return f
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		return ParsePrice(val)
	case map[string]any:
		for _, key := range []string{"value", "amount", "price"} {
			if inner, ok := val[key]; ok {
				return toNumber(inner)
			}
		}
	}
	return 0
}

var priceNumberPattern = regexp.MustCompile(`\d[\d.,\s]*`)

// ParsePrice 解析價格文字，支援 "1.234,56 TL"、"35,90"、"35.90"、"₺ 1 299" 等寫法
func ParsePrice(s string) float64 {
	match := priceNumberPattern.FindString(s)
	if match == "" {
		return 0
	}
	num := strings.ReplaceAll(strings.TrimSpace(match), " ", "")
	num = strings.TrimRight(num, ".,")

	lastComma := strings.LastIndex(num, ",")
	lastDot := strings.LastIndex(num, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		} else {
			// 1,234.56
			num = strings.ReplaceAll(num, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(num, ",") > 1 {
			num = strings.ReplaceAll(num, ",", "")
		} else {
			num = strings.Replace(num, ",", ".", 1)
		}
	case lastDot >= 0:
		// 1.299 或 1.299.000 視為千分位
		if strings.Count(num, ".") > 1 || len(num)-lastDot-1 == 3 {
			num = strings.ReplaceAll(num, ".", "")
		}
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return f
}

// firstImage 支援字串、{url} 物件或陣列
func firstImage(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		for _, key := range []string{"url", "contentUrl", "src", "@id"} {
			if s, ok := val[key].(string); ok && s != "" {
				return s
			}
		}
	case []any:
		for _, item := range val {
			if u := firstImage(item); u != "" {
				return u
			}
		}
	}
	return ""
}

// typesOf 取得 @type，可能為字串或陣列
func typesOf(m map[string]any) []string {
	switch t := m["@type"].(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func hasType(m map[string]any, want string) bool {
	for _, t := range typesOf(m) {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}

// idFromURL 取路徑最後一段作為識別碼
func idFromURL(u string) string {
	u = strings.TrimSpace(u)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	return u
}
