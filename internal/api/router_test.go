package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"price-discovery/internal/core/cache"
	"price-discovery/internal/core/market"
	"price-discovery/internal/core/matching"
	"price-discovery/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct{}

func (stubCatalog) Search(_ context.Context, query string, page int, _ market.SortHint) (*market.SearchResult, error) {
	return &market.SearchResult{Query: market.Normalize(query), Products: []market.ProductListing{}, CurrentPage: page}, nil
}

func (stubCatalog) Product(context.Context, string) (*market.ProductDetail, error) {
	return nil, nil
}

type stubMatcher struct{}

func (stubMatcher) FindBestOffer(context.Context, string, string) (*matching.BestOffer, error) {
	return nil, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Debug = true
	cfg.App.Version = "test"
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Requests = 3
	cfg.RateLimit.Window = time.Minute
	cfg.DedupWindow = time.Second
	return cfg
}

func request(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_Routes(t *testing.T) {
	cm := cache.NewManager(cache.NewMemoryStore(), cache.Options{})
	cfg := testConfig()
	// 本測試打超過 3 次 API，放寬限流
	cfg.RateLimit.Requests = 100
	r, err := SetupRouter(cfg, Dependencies{
		Cache:   cm,
		Catalog: stubCatalog{},
		Matcher: stubMatcher{},
		Batch:   matching.NewBatcher(stubMatcher{}, 2, 5),
	})
	require.NoError(t, err)

	w := request(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cache"`)
	assert.Contains(t, w.Body.String(), `"batch"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, request(t, r, http.MethodGet, "/live", "").Code)
	assert.Equal(t, http.StatusOK, request(t, r, http.MethodGet, "/api/v1/price/search?q=un", "").Code)
	assert.Equal(t, http.StatusNotFound, request(t, r, http.MethodGet, "/api/v1/price/products/x", "").Code)
	assert.Equal(t, http.StatusOK, request(t, r, http.MethodPost, "/api/v1/ingredients/parse", `{"text":"1 kg un"}`).Code)
	assert.Equal(t, http.StatusOK, request(t, r, http.MethodPost, "/api/v1/price/best-offers", `{"items":[{"product_name":"un"}]}`).Code)
}

func TestSetupRouter_RateLimitOnAPIOnly(t *testing.T) {
	r, err := SetupRouter(testConfig(), Dependencies{Catalog: stubCatalog{}, Matcher: stubMatcher{}})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, request(t, r, http.MethodGet, "/api/v1/price/search?q=un", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, request(t, r, http.MethodGet, "/api/v1/price/search?q=un", "").Code)
	assert.Equal(t, http.StatusOK, request(t, r, http.MethodGet, "/live", "").Code)
}

func TestSetupRouter_MissingDependencies(t *testing.T) {
	_, err := SetupRouter(testConfig(), Dependencies{})
	assert.Error(t, err)
}
