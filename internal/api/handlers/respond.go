package handlers

import (
	"context"
	"errors"
	"net/http"

	"price-discovery/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RespondError 將錯誤轉為統一的 JSON 錯誤回應
func RespondError(c *gin.Context, err error) {
	status, body := errorBody(err)

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status", status),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", requestid.Get(c)),
	}
	if status >= http.StatusInternalServerError {
		common.LogError("請求處理失敗", fields...)
	} else {
		common.LogWarn("請求無法完成", fields...)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func errorBody(err error) (int, common.ErrorResponse) {
	var custom *common.CustomError
	switch {
	case common.IsValidationError(err):
		return common.ErrInvalidRequest.Status, common.ErrorResponse{
			Code:    common.ErrInvalidRequest.Code,
			Message: err.Error(),
		}
	case errors.As(err, &custom):
		return custom.Status, common.ErrorResponse{
			Code:    custom.Code,
			Message: custom.Message,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, common.ErrorResponse{
			Code:    common.ErrCodeGatewayTimeout,
			Message: common.ErrGatewayTimeout.Message,
		}
	default:
		return http.StatusInternalServerError, common.ErrorResponse{
			Code:    common.ErrCodeInternalError,
			Message: common.ErrInternalError.Message,
		}
	}
}

// BindError 將 gin 綁定錯誤包成驗證錯誤
func BindError(err error) error {
	return common.NewValidationError("invalid request format: " + err.Error())
}
