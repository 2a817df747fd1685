package matching

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"price-discovery/internal/core/market"
	"price-discovery/internal/pkg/common"
)

// buildExpansionPrompt 請模型把食材名稱改寫成適合比價網站搜尋的詞
func buildExpansionPrompt(term, quantityHint string) string {
	var b strings.Builder
	b.WriteString("Bir Türk market fiyat karşılaştırma sitesinde arama yapılacak.\n")
	b.WriteString("Aşağıdaki malzeme adını, sitede doğru ürünü bulacak kısa bir arama ifadesine dönüştür.\n")
	b.WriteString("Kurallar:\n")
	b.WriteString("1. Sadece arama ifadesini yaz, açıklama ekleme.\n")
	b.WriteString("2. Malzeme genel bir kategori ise tipik paket boyutunu veya en yaygın çeşidini ekle (örn. \"süt\" -> \"süt 1 l\").\n")
	b.WriteString("3. Marka ekleme, malzemenin anlamını değiştirme.\n")
	b.WriteString("4. En fazla 6 kelime kullan.\n")
	fmt.Fprintf(&b, "Malzeme: %s\n", term)
	if quantityHint != "" {
		fmt.Fprintf(&b, "Miktar: %s\n", quantityHint)
	}
	return b.String()
}

// cleanExpansion 取第一行並去除引號與常見前綴
func cleanExpansion(raw string) string {
	raw = strings.TrimSpace(raw)
	if line, _, ok := strings.Cut(raw, "\n"); ok {
		raw = line
	}
	raw = strings.TrimSpace(raw)
	for _, prefix := range []string{"Arama ifadesi:", "Arama:", "Search:", "Query:"} {
		if len(raw) >= len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix) {
			raw = raw[len(prefix):]
		}
	}
	return strings.Trim(strings.TrimSpace(raw), "\"'`“”")
}

// buildRerankPrompt 給模型編號的候選清單與領域規則
func buildRerankPrompt(term, quantityHint string, candidates []market.ProductListing) string {
	var b strings.Builder
	b.WriteString("Bir yemek tarifi için market ürünü seçiyorsun.\n")
	fmt.Fprintf(&b, "İstenen malzeme: %s\n", term)
	if quantityHint != "" {
		fmt.Fprintf(&b, "İstenen miktar: %s\n", quantityHint)
	}
	b.WriteString("Adaylar:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s - %.2f TL", i+1, c.Name, c.Price)
		if c.MerchantName != "" {
			fmt.Fprintf(&b, " (%s)", c.MerchantName)
		}
		b.WriteString("\n")
	}
	b.WriteString("Kurallar:\n")
	b.WriteString("1. Atıştırmalık, şekerleme, tatlı ve kozmetik ürünleri (losyon, şampuan, sabun vb.) asla seçme.\n")
	b.WriteString("2. Malzemeyle ilgisi olmayan kategorilerin aromalı çeşitlerini seçme.\n")
	b.WriteString("3. Ürün adı istenen malzemenin kendisi olmalı, sadece benzer harfler içermesi yetmez.\n")
	b.WriteString("4. Uygun aday yoksa index 0 ve isRelevant false döndür.\n")
	b.WriteString(`Sadece şu JSON'u döndür: {"index": <1 tabanlı sıra>, "reason": "<kısa gerekçe>", "isRelevant": true}`)
	return b.String()
}

// rerankDecision 模型的結構化決定
type rerankDecision struct {
	Index      flexInt `json:"index"`
	Reason     string  `json:"reason"`
	IsRelevant *bool   `json:"isRelevant"`
	IsValid    *bool   `json:"isValid"`
}

// accepted 是否明確選出候選
func (d rerankDecision) accepted() bool {
	if d.IsRelevant != nil && !*d.IsRelevant {
		return false
	}
	if d.IsValid != nil && !*d.IsValid {
		return false
	}
	return d.Index > 0
}

// parseRerankDecision 從自由文字中取出第一個 JSON 物件
func parseRerankDecision(text string) (rerankDecision, error) {
	var d rerankDecision
	if err := common.ParseEmbeddedJSON(text, &d); err != nil {
		return rerankDecision{}, err
	}
	return d, nil
}

// flexInt 接受 2、"2"、2.0
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
		if len(data) == 0 {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid index %q: %w", string(data), err)
	}
	*f = flexInt(int(v))
	return nil
}
