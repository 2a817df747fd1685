package ingredient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"price-discovery/internal/core/ingredient"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/parse", HandleParse)

	req := httptest.NewRequest(http.MethodPost, "/parse", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleParse(t *testing.T) {
	w := post(t, `{"text": "200 gram makarna\n\n2 su bardağı süt", "lines": ["3 adet yumurta"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ParseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 3)

	assert.Equal(t, "makarna", resp.Items[0].Name)
	assert.Equal(t, 200.0, resp.Items[0].QuantityInGrams)
	assert.Equal(t, "süt", resp.Items[1].Name)
	assert.Equal(t, 400.0, resp.Items[1].QuantityInGrams)
	assert.Equal(t, ingredient.UnitCount, resp.Items[2].Unit)
	assert.Equal(t, 180.0, resp.Items[2].QuantityInGrams)
}

func TestHandleParse_Invalid(t *testing.T) {
	for _, body := range []string{`{}`, `{"text": "   "}`, `not json`} {
		w := post(t, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	lines, _ := json.Marshal(map[string][]string{"lines": strings.Split(strings.Repeat("1 kg un,", 101), ",")[:101]})
	w := post(t, string(lines))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
