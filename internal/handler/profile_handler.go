package handler

import (
	"net/http"

	"github.com/devoffus/TrustLink/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// ProfileHandler 链上身份档案接口
type ProfileHandler struct {
	resolver ledger.IdentityResolver
}

// NewProfileHandler 创建身份档案接口
func NewProfileHandler(resolver ledger.IdentityResolver) *ProfileHandler {
	return &ProfileHandler{resolver: resolver}
}

// GetProfile 解析地址的链上身份元数据
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		ErrorResponse(c, http.StatusBadRequest, "地址格式不合法")
		return
	}

	meta := h.resolver.Resolve(c.Request.Context(), address)
	SuccessResponse(c, http.StatusOK, "ok", meta)
}
