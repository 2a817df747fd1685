package ingredient

import (
	"net/http"
	"strings"

	"price-discovery/internal/api/handlers"
	"price-discovery/internal/core/ingredient"
	"price-discovery/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// maxLines 單次請求可解析的行數
const maxLines = 100

// ParseRequest 食材文字，可一次送多行
type ParseRequest struct {
	Text  string   `json:"text"`
	Lines []string `json:"lines,omitempty"`
}

// ParseResponse 解析結果，順序與輸入相同
type ParseResponse struct {
	Items []ingredient.Requirement `json:"items"`
}

// HandleParse 將食材文字轉為名稱與標準化數量
func HandleParse(c *gin.Context) {
	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondError(c, handlers.BindError(err))
		return
	}

	lines := req.Lines
	if req.Text != "" {
		lines = append(strings.Split(req.Text, "\n"), lines...)
	}

	resp := ParseResponse{Items: []ingredient.Requirement{}}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		resp.Items = append(resp.Items, ingredient.Parse(line))
	}

	switch {
	case len(resp.Items) == 0:
		handlers.RespondError(c, common.NewFieldError("text", "must not be empty"))
		return
	case len(resp.Items) > maxLines:
		handlers.RespondError(c, common.NewFieldError("lines", "too many lines"))
		return
	}
	c.JSON(http.StatusOK, resp)
}
