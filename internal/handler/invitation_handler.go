package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/gin-gonic/gin"
)

// InvitationHandler 邀请接口
type InvitationHandler struct {
	invitationLogic *logic.InvitationLogic
}

// NewInvitationHandler 创建邀请接口
func NewInvitationHandler(invitationLogic *logic.InvitationLogic) *InvitationHandler {
	return &InvitationHandler{invitationLogic: invitationLogic}
}

// CreateInvitation 签发邀请
func (h *InvitationHandler) CreateInvitation(c *gin.Context) {
	var req CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	invitation, err := h.invitationLogic.CreateInvitation(
		req.ProjectId, req.Email, req.InviteeAddress, req.Message, currentAddress(c))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "邀请已签发", ToInvitationView(invitation, time.Now()))
}

// GetInvitation 获取邀请详情
func (h *InvitationHandler) GetInvitation(c *gin.Context) {
	invitation, err := h.invitationLogic.GetInvitation(c.Param("id"))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", ToInvitationView(invitation, time.Now()))
}

// GetInvitations 获取邀请列表
func (h *InvitationHandler) GetInvitations(c *gin.Context) {
	projectId, _ := strconv.ParseInt(c.Query("project_id"), 10, 64)
	email := c.Query("email")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	invitations, total, err := h.invitationLogic.GetInvitations(projectId, email, page, pageSize)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	now := time.Now()
	views := make([]InvitationView, len(invitations))
	for i := range invitations {
		views[i] = ToInvitationView(&invitations[i], now)
	}

	SuccessResponse(c, http.StatusOK, "ok", gin.H{
		"invitations": views,
		"pagination":  NewPagination(page, pageSize, total),
	})
}

// AcceptInvitation 接受邀请
func (h *InvitationHandler) AcceptInvitation(c *gin.Context) {
	invitation, err := h.invitationLogic.AcceptInvitation(c.Param("id"), currentAddress(c))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "邀请已接受", ToInvitationView(invitation, time.Now()))
}

// DeclineInvitation 拒绝邀请
func (h *InvitationHandler) DeclineInvitation(c *gin.Context) {
	var req DeclineInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.invitationLogic.DeclineInvitation(c.Param("id"), req.Note); err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "邀请已拒绝", nil)
}

// CancelInvitation 发起方取消邀请
func (h *InvitationHandler) CancelInvitation(c *gin.Context) {
	if err := h.invitationLogic.CancelInvitation(c.Param("id"), currentAddress(c)); err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "邀请已取消", nil)
}

// ResendInvitation 重发邀请（刷新有效期）
func (h *InvitationHandler) ResendInvitation(c *gin.Context) {
	invitation, err := h.invitationLogic.ResendInvitation(c.Param("id"), currentAddress(c))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "邀请已重发", ToInvitationView(invitation, time.Now()))
}
