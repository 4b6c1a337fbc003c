package handler

import (
	"net/http"
	"strconv"

	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/devoffus/TrustLink/internal/model"
	"github.com/gin-gonic/gin"
)

// ProjectHandler 项目接口
type ProjectHandler struct {
	projectLogic *logic.ProjectLogic
	escrowLogic  *logic.EscrowLogic
}

// NewProjectHandler 创建项目接口
func NewProjectHandler(projectLogic *logic.ProjectLogic, escrowLogic *logic.EscrowLogic) *ProjectHandler {
	return &ProjectHandler{
		projectLogic: projectLogic,
		escrowLogic:  escrowLogic,
	}
}

// CreateProject 创建项目草稿。调用方为客户，地址取自会话。
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	project := &model.ProjectModel{
		Title:             req.Title,
		Description:       req.Description,
		ClientAddress:     currentAddress(c),
		FreelancerAddress: req.FreelancerAddress,
		Budget:            req.Budget,
		Deadline:          req.Deadline,
		ReleaseType:       model.ReleaseType(req.ReleaseType),
		DisputeResolution: model.DisputeResolution(req.DisputeResolution),
		TimelockDays:      req.TimelockDays,
	}
	if project.ReleaseType == "" {
		project.ReleaseType = model.ReleaseTypeManual
	}
	if project.DisputeResolution == "" {
		project.DisputeResolution = model.DisputeResolutionArbitration
	}
	if project.TimelockDays == 0 {
		project.TimelockDays = 7
	}

	milestones := make([]model.MilestoneModel, len(req.Milestones))
	for i, m := range req.Milestones {
		milestones[i] = model.MilestoneModel{
			Title:       m.Title,
			Percentage:  m.Percentage,
			Description: m.Description,
		}
	}

	if err := h.projectLogic.CreateProject(project, milestones); err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "项目创建成功", project)
}

// GetProjects 获取项目列表
func (h *ProjectHandler) GetProjects(c *gin.Context) {
	participant := c.Query("participant")
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	projects, total, err := h.projectLogic.GetProjects(participant, status, page, pageSize)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", gin.H{
		"projects":   projects,
		"pagination": NewPagination(page, pageSize, total),
	})
}

// GetProject 获取单个项目详情
func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, err := parseProjectId(c)
	if err != nil {
		return
	}

	project, err := h.projectLogic.GetProject(id)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", project)
}

// GetProjectMilestones 获取项目里程碑计划（含派生状态与释放金额）
func (h *ProjectHandler) GetProjectMilestones(c *gin.Context) {
	id, err := parseProjectId(c)
	if err != nil {
		return
	}

	project, err := h.projectLogic.GetProject(id)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	milestones, err := h.projectLogic.GetProjectMilestones(id)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	percentages := make([]int, len(milestones))
	for i, m := range milestones {
		percentages[i] = m.Percentage
	}

	views := make([]MilestoneView, len(milestones))
	for i, m := range milestones {
		status, err := h.escrowLogic.MilestoneStatus(id, i)
		if err != nil {
			AppErrorResponse(c, err)
			return
		}
		views[i] = MilestoneView{
			Index:       m.Idx,
			Title:       m.Title,
			Percentage:  m.Percentage,
			Description: m.Description,
			Status:      string(status),
			Amount:      logic.ReleaseAmount(project.Budget, percentages, i),
		}
	}

	SuccessResponse(c, http.StatusOK, "ok", views)
}

// ActivateProject 激活项目并部署托管合约
func (h *ProjectHandler) ActivateProject(c *gin.Context) {
	id, err := parseProjectId(c)
	if err != nil {
		return
	}

	project, err := h.projectLogic.GetProject(id)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	// 激活是客户动作
	if currentAddress(c) != project.ClientAddress {
		ErrorResponse(c, http.StatusForbidden, "仅客户可激活项目")
		return
	}

	op, err := h.escrowLogic.Activate(c.Request.Context(), id)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusAccepted, "项目激活已发起，等待链上确认", gin.H{
		"op_id":   op.Id,
		"tx_hash": op.TxHash,
	})
}

// GetProjectTransactions 获取项目的链上操作历史
func (h *ProjectHandler) GetProjectTransactions(c *gin.Context) {
	id, err := parseProjectId(c)
	if err != nil {
		return
	}

	ops, err := h.escrowLogic.GetLedgerOps(id)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", ops)
}

// GetProjectStats 获取项目统计信息
func (h *ProjectHandler) GetProjectStats(c *gin.Context) {
	stats, err := h.projectLogic.GetProjectStats()
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", stats)
}

// parseProjectId 解析路径中的项目ID，失败时直接写响应
func parseProjectId(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的项目ID")
		return 0, err
	}
	return id, nil
}

// currentAddress 当前会话的钱包地址（由认证中间件写入）
func currentAddress(c *gin.Context) string {
	return c.GetString("address")
}
