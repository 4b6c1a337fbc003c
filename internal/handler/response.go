package handler

import (
	"net/http"

	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// AppErrorResponse 业务错误响应：按错误类别映射HTTP状态码，错误码随响应返回
func AppErrorResponse(c *gin.Context, err error) {
	code := logic.ErrCode(err)
	status := statusForError(err)

	c.JSON(status, Response{
		Success: false,
		Message: err.Error(),
		Code:    code,
	})
}

// statusForError 业务错误类别到HTTP状态码的映射
func statusForError(err error) int {
	if logic.ErrCode(err) == logic.CodeNotFound {
		return http.StatusNotFound
	}

	switch logic.ErrKindOf(err) {
	case logic.ErrKindValidation:
		return http.StatusBadRequest
	case logic.ErrKindAuthorization:
		return http.StatusForbidden
	case logic.ErrKindStateConflict:
		return http.StatusConflict
	case logic.ErrKindLedger, logic.ErrKindTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
