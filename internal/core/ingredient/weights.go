package ingredient

import (
	"sort"
	"strings"
)

// countWeights 單顆食材的常見重量（公克）
var countWeights = map[string]float64{
	"yumurta":     60,
	"domates":     150,
	"soğan":       150,
	"kuru soğan":  150,
	"taze soğan":  20,
	"patates":     200,
	"limon":       100,
	"havuç":       80,
	"salatalık":   120,
	"biber":       50,
	"sivri biber": 20,
	"kapya biber": 120,
	"patlıcan":    250,
	"kabak":       200,
	"elma":        180,
	"muz":         120,
	"portakal":    200,
	"sarımsak":    40,
	"avokado":     170,
	"tavuk but":   200,
	"lavaş":       60,
	"ekmek":       250,
}

// countKeys 由長到短，讓 "kapya biber" 先於 "biber"
var countKeys = sortedCountKeys()

func sortedCountKeys() []string {
	keys := make([]string, 0, len(countWeights))
	for k := range countWeights {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// GramsPerCount 查詢單顆重量，查不到時回傳 DefaultGramsPerCount
func GramsPerCount(name string) float64 {
	name = turkishLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultGramsPerCount
	}
	for _, k := range countKeys {
		if strings.Contains(name, k) {
			return countWeights[k]
		}
	}
	return DefaultGramsPerCount
}
