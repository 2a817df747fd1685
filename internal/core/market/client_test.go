package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"price-discovery/internal/core/cache"
	"price-discovery/internal/core/fetch"
	"price-discovery/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher 依網址回傳固定內容並記錄呼叫
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	source fetch.Source
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) fetch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	if !ok {
		return fetch.Result{URL: url, Source: fetch.SourceNone}
	}
	src := f.source
	if src == "" {
		src = fetch.SourceDirect
	}
	return fetch.Result{URL: url, Body: body, Source: src, StatusCode: 200, FetchedAt: time.Now()}
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const searchPage = `<html><body>
<div class="pagination">1 / 3</div>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"searchResult":{"products":[
 {"id":"sutas-sut-1-l","name":"Sütaş Süt 1 L","price":35,"url":"/sutas-sut-1-l","merchantName":"Migros"},
 {"id":"pinar-sut-1-l","name":"Pınar Süt 1 L","price":0,"url":"/pinar-sut-1-l"}
]}}}}</script></body></html>`

const detailPage = `<html><head><script type="application/ld+json">{"@type":"Product","name":"Sütaş Süt 1 L","sku":"sutas-sut-1-l",
"description":"Pastörize süt","offers":{"@type":"AggregateOffer","lowPrice":34.9,"offers":[
 {"@type":"Offer","price":41,"seller":{"name":"Şok"}},
 {"@type":"Offer","price":34.9,"seller":{"name":"Migros"}}]}}</script></head><body></body></html>`

func newTestClient(t *testing.T, f *fakeFetcher) (*Client, *cache.Manager) {
	t.Helper()
	cm := cache.NewManager(cache.NewMemoryStore(), cache.Options{DefaultTTL: time.Hour, MaxEntries: 100})
	return NewClient(f, cm, testURLs, time.Hour), cm
}

func TestClient_Search(t *testing.T) {
	searchURL := testURLs.BuildSearchURL("süt", 1, SortPriceAsc)
	f := &fakeFetcher{pages: map[string]string{searchURL: searchPage}}
	client, _ := newTestClient(t, f)

	result, err := client.Search(context.Background(), "Süt", 1, SortPriceAsc)
	require.NoError(t, err)

	assert.Equal(t, "sut", result.Query)
	assert.Equal(t, 1, result.CurrentPage)
	assert.Equal(t, 3, result.TotalPages)
	require.Len(t, result.Products, 1, "零價格商品不列出")
	assert.Equal(t, "Sütaş Süt 1 L", result.Products[0].Name)
	assert.Equal(t, "https://www.example.com/sutas-sut-1-l", result.Products[0].ProductURL)
}

func TestClient_SearchUsesPageCache(t *testing.T) {
	searchURL := testURLs.BuildSearchURL("süt", 1, SortRelevance)
	f := &fakeFetcher{pages: map[string]string{searchURL: searchPage}}
	client, cm := newTestClient(t, f)
	ctx := context.Background()

	first, err := client.Search(ctx, "süt", 1, SortRelevance)
	require.NoError(t, err)
	second, err := client.Search(ctx, "SÜT", 1, SortRelevance)
	require.NoError(t, err)

	assert.Equal(t, 1, f.callCount())
	assert.Equal(t, first, second)

	stats := cm.Stats(ctx)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestClient_SearchEmptyBodyNotCached(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{}}
	client, cm := newTestClient(t, f)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := client.Search(ctx, "süt", 1, SortRelevance)
		require.NoError(t, err)
		assert.Empty(t, result.Products)
		assert.NotNil(t, result.Products)
		assert.Equal(t, 0, result.TotalPages)
	}

	assert.Equal(t, 2, f.callCount(), "失敗結果不寫入快取")
	assert.Equal(t, 0, cm.Stats(ctx).Entries)
}

func TestClient_SearchValidation(t *testing.T) {
	f := &fakeFetcher{}
	client, _ := newTestClient(t, f)

	_, err := client.Search(context.Background(), "  !! ", 1, SortRelevance)
	assert.True(t, common.IsValidationError(err))

	_, err = client.Search(context.Background(), "süt", 0, SortRelevance)
	assert.True(t, common.IsValidationError(err))

	assert.Equal(t, 0, f.callCount())
}

func TestClient_SearchWithoutCache(t *testing.T) {
	searchURL := testURLs.BuildSearchURL("süt", 2, SortRelevance)
	f := &fakeFetcher{pages: map[string]string{searchURL: searchPage}}
	client := NewClient(f, nil, testURLs, time.Hour)

	for i := 0; i < 2; i++ {
		result, err := client.Search(context.Background(), "süt", 2, SortRelevance)
		require.NoError(t, err)
		assert.Len(t, result.Products, 1)
		assert.Equal(t, 2, result.CurrentPage)
	}
	assert.Equal(t, 2, f.callCount())
}

func TestClient_RenderedBodyMatchesDirect(t *testing.T) {
	searchURL := testURLs.BuildSearchURL("süt", 1, SortRelevance)

	direct := &fakeFetcher{pages: map[string]string{searchURL: searchPage}, source: fetch.SourceDirect}
	rendered := &fakeFetcher{pages: map[string]string{searchURL: searchPage}, source: fetch.SourceRendered}

	a, err := NewClient(direct, nil, testURLs, time.Hour).Search(context.Background(), "süt", 1, SortRelevance)
	require.NoError(t, err)
	b, err := NewClient(rendered, nil, testURLs, time.Hour).Search(context.Background(), "süt", 1, SortRelevance)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestClient_Product(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://www.example.com/sutas-sut-1-l": detailPage,
	}}
	client, _ := newTestClient(t, f)

	detail, err := client.Product(context.Background(), "sutas-sut-1-l")
	require.NoError(t, err)
	require.NotNil(t, detail)

	assert.Equal(t, "sutas-sut-1-l", detail.ID)
	assert.Equal(t, "Pastörize süt", detail.Description)
	assert.Equal(t, "https://www.example.com/sutas-sut-1-l", detail.ProductURL)
	require.Len(t, detail.Offers, 2)
	assert.Equal(t, "Migros", detail.Offers[0].MerchantName)
	assert.Equal(t, 34.9, detail.Offers[0].Price)

	byURL, err := client.Product(context.Background(), "https://www.example.com/sutas-sut-1-l")
	require.NoError(t, err)
	assert.Equal(t, detail, byURL)
	assert.Equal(t, 1, f.callCount(), "第二次命中快取")
}

func TestClient_ProductNotFound(t *testing.T) {
	client, _ := newTestClient(t, &fakeFetcher{pages: map[string]string{}})

	detail, err := client.Product(context.Background(), "yok")
	require.NoError(t, err)
	assert.Nil(t, detail)

	_, err = client.Product(context.Background(), " ")
	assert.True(t, common.IsValidationError(err))
}
