package handler

import (
	"net/http"
	"strconv"

	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/gin-gonic/gin"
)

// MilestoneHandler 里程碑提交与验收接口
type MilestoneHandler struct {
	escrowLogic *logic.EscrowLogic
}

// NewMilestoneHandler 创建里程碑接口
func NewMilestoneHandler(escrowLogic *logic.EscrowLogic) *MilestoneHandler {
	return &MilestoneHandler{escrowLogic: escrowLogic}
}

// SubmitMilestone 自由职业者提交里程碑交付
func (h *MilestoneHandler) SubmitMilestone(c *gin.Context) {
	projectId, err := parseProjectId(c)
	if err != nil {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的里程碑序号")
		return
	}

	var req SubmitMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	submission, err := h.escrowLogic.SubmitMilestone(c.Request.Context(),
		projectId, index, req.Description, req.Evidence, currentAddress(c))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusAccepted, "里程碑提交已发起，等待链上确认", ToSubmissionView(submission))
}

// VerifyMilestone 客户验收里程碑，触发资金释放
func (h *MilestoneHandler) VerifyMilestone(c *gin.Context) {
	projectId, err := parseProjectId(c)
	if err != nil {
		return
	}
	submissionId := c.Param("submission_id")

	receipt, err := h.escrowLogic.VerifyMilestone(c.Request.Context(),
		projectId, submissionId, currentAddress(c))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusAccepted, "验收已发起，等待链上确认", receipt)
}

// RejectMilestone 客户驳回里程碑提交
func (h *MilestoneHandler) RejectMilestone(c *gin.Context) {
	projectId, err := parseProjectId(c)
	if err != nil {
		return
	}
	submissionId := c.Param("submission_id")

	var req RejectMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.escrowLogic.RejectMilestone(projectId, submissionId, req.Reason, currentAddress(c)); err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "里程碑已驳回", nil)
}

// GetSubmissions 获取项目的提交历史
func (h *MilestoneHandler) GetSubmissions(c *gin.Context) {
	projectId, err := parseProjectId(c)
	if err != nil {
		return
	}

	submissions, err := h.escrowLogic.GetSubmissions(projectId)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", ToSubmissionViewList(submissions))
}

// GetSubmission 获取提交详情
func (h *MilestoneHandler) GetSubmission(c *gin.Context) {
	submission, err := h.escrowLogic.GetSubmission(c.Param("submission_id"))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", ToSubmissionView(submission))
}

// AddComment 向提交追加评论
func (h *MilestoneHandler) AddComment(c *gin.Context) {
	submissionId := c.Param("submission_id")

	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.escrowLogic.AppendComment(submissionId, currentAddress(c), req.Text); err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "评论已追加", nil)
}
