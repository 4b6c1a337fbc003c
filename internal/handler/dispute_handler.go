package handler

import (
	"net/http"
	"time"

	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/devoffus/TrustLink/internal/model"
	"github.com/gin-gonic/gin"
)

// DisputeHandler 争议接口
type DisputeHandler struct {
	disputeLogic *logic.DisputeLogic
}

// NewDisputeHandler 创建争议接口
func NewDisputeHandler(disputeLogic *logic.DisputeLogic) *DisputeHandler {
	return &DisputeHandler{disputeLogic: disputeLogic}
}

// OpenDispute 开启争议
func (h *DisputeHandler) OpenDispute(c *gin.Context) {
	projectId, err := parseProjectId(c)
	if err != nil {
		return
	}

	var req OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	dispute, err := h.disputeLogic.OpenDispute(c.Request.Context(), projectId, req.Reason, currentAddress(c))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusAccepted, "争议已开启，等待链上确认", dispute)
}

// ResolveDispute 解决争议。裁决来自托管设置约定的解决机制，
// 接口侧不限定调用方身份。
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	projectId, err := parseProjectId(c)
	if err != nil {
		return
	}

	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.disputeLogic.ResolveDispute(projectId, model.DisputeOutcome(req.Outcome)); err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "争议已解决", nil)
}

// GetDisputes 获取项目的争议历史
func (h *DisputeHandler) GetDisputes(c *gin.Context) {
	projectId, err := parseProjectId(c)
	if err != nil {
		return
	}

	disputes, err := h.disputeLogic.GetDisputes(projectId)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", disputes)
}

// GetReleaseStatus 查询资金释放是否被争议或时间锁冻结
func (h *DisputeHandler) GetReleaseStatus(c *gin.Context) {
	projectId, err := parseProjectId(c)
	if err != nil {
		return
	}

	allowed, err := h.disputeLogic.IsReleaseAllowed(projectId, time.Now())
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", gin.H{"release_allowed": allowed})
}
