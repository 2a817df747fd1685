package market

import (
	"net/url"
	"testing"

	"price-discovery/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Süt", "sut"},
		{"IŞIK", "isik"},
		{"  Çiğ   Köfte ", "cig kofte"},
		{"Zeytinyağı (1 L)", "zeytinyagi 1 l"},
		{"İstanbul", "istanbul"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestParseSortHint(t *testing.T) {
	s, err := ParseSortHint("")
	require.NoError(t, err)
	assert.Equal(t, SortRelevance, s)

	s, err = ParseSortHint("PRICE_ASC")
	require.NoError(t, err)
	assert.Equal(t, SortPriceAsc, s)

	_, err = ParseSortHint("cheapest")
	assert.True(t, common.IsValidationError(err))
}

func TestBuildSearchURL(t *testing.T) {
	b := URLBuilder{SearchURL: "https://www.example.com/arama"}

	first, err := url.Parse(b.BuildSearchURL("Süt", 1, SortRelevance))
	require.NoError(t, err)
	assert.Equal(t, "sut", first.Query().Get("q"))
	assert.Empty(t, first.Query().Get("page"), "page 1 不帶頁碼")
	assert.Empty(t, first.Query().Get("sort"))

	third, err := url.Parse(b.BuildSearchURL("Tam Yağlı Süt", 3, SortPriceAsc))
	require.NoError(t, err)
	assert.Equal(t, "tam yagli sut", third.Query().Get("q"))
	assert.Equal(t, "3", third.Query().Get("page"))
	assert.Equal(t, "price-asc", third.Query().Get("sort"))

	// 同一詞的不同寫法產生相同網址
	assert.Equal(t, b.BuildSearchURL("SÜT", 2, SortPriceDesc), b.BuildSearchURL(" süt ", 2, SortPriceDesc))
}

func TestBuildSearchURL_ExistingQuery(t *testing.T) {
	b := URLBuilder{SearchURL: "https://www.example.com/search?lang=tr"}
	assert.Equal(t, "https://www.example.com/search?lang=tr&q=sut", b.BuildSearchURL("süt", 1, ""))
}

func TestURLBuilder_DetailAndResolve(t *testing.T) {
	b := URLBuilder{
		BaseURL:           "https://www.example.com",
		DetailURLTemplate: "https://www.example.com/%s",
	}

	assert.Equal(t, "https://www.example.com/sutas-sut-1-l", b.BuildDetailURL("/sutas-sut-1-l/"))

	assert.Equal(t, "https://www.example.com/pinar-sut", b.Resolve("/pinar-sut"))
	assert.Equal(t, "https://cdn.example.net/a.jpg", b.Resolve("https://cdn.example.net/a.jpg"))
	assert.Equal(t, "https://cdn.example.net/a.jpg", b.Resolve("//cdn.example.net/a.jpg"))
	assert.Empty(t, b.Resolve(""))
	assert.Empty(t, b.Resolve("javascript:void(0)"))

	noBase := URLBuilder{}
	assert.Empty(t, noBase.Resolve("/relative"))
}
