package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ParseJSON 解析 JSON 字符串到結構體
func ParseJSON(data string, v interface{}) error {
	return decodeJSON(strings.NewReader(data), v, false)
}

// ParseJSONBytes 解析 JSON 位元組切片到結構體
func ParseJSONBytes(data []byte, v interface{}) error {
	return decodeJSON(bytes.NewReader(data), v, false)
}

// DecodeJSON 使用統一設定解析 JSON
func DecodeJSON(r io.Reader, v interface{}) error {
	return decodeJSON(r, v, false)
}

func decodeJSON(r io.Reader, v interface{}, disallowUnknown bool) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if disallowUnknown {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(v); err != nil {
		return err
	}

	// 確保沒有多餘資料
	for {
		t, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if t != nil {
			return fmt.Errorf("unexpected extra JSON data")
		}
	}
}

var unquotedKeyPattern = regexp.MustCompile(`([{\[,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// QuoteJSONKeys 將未加雙引號的鍵補上雙引號
func QuoteJSONKeys(raw string) string {
	return unquotedKeyPattern.ReplaceAllString(raw, `$1"$2":`)
}

// ExtractJSONObject 從自由文字中找出第一個括號平衡的 {...} 區塊。
// 字串內的括號與跳脫字元不計入深度。
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	for start != -1 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
		// 未閉合，從下一個 { 重試
		next := strings.Index(text[start+1:], "{")
		if next == -1 {
			break
		}
		start = start + 1 + next
	}
	return "", false
}

// ParseEmbeddedJSON 從模型回應中取出第一個 JSON 物件並解析。
// 先嚴格解析，失敗時再嘗試補上未加引號的鍵。
func ParseEmbeddedJSON(text string, v interface{}) error {
	block, ok := ExtractJSONObject(text)
	if !ok {
		return fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(block), v); err == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(QuoteJSONKeys(block)), v); err != nil {
		return fmt.Errorf("failed to parse embedded JSON: %w", err)
	}
	return nil
}

// ToJSON 將結構體轉換為 JSON 字符串
func ToJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
