package logic

import (
	"errors"
	"fmt"
	"time"

	"github.com/devoffus/TrustLink/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

// ProjectLogic 项目业务逻辑
type ProjectLogic struct {
	db *gorm.DB
}

// NewProjectLogic 创建项目业务逻辑
func NewProjectLogic(db *gorm.DB) *ProjectLogic {
	return &ProjectLogic{db: db}
}

// CreateProject 创建项目草稿及其里程碑计划。
// 百分比总和在激活时校验，创建阶段只做单项校验。
func (p *ProjectLogic) CreateProject(project *model.ProjectModel, milestones []model.MilestoneModel) error {
	// 验证项目数据
	if err := p.validateProject(project); err != nil {
		return err
	}
	for i := range milestones {
		if err := p.validateMilestone(&milestones[i]); err != nil {
			return err
		}
	}

	// 设置默认值
	project.Status = model.ProjectStatusPending

	// 项目和里程碑在同一事务中创建
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("创建项目失败: %w", err)
		}

		for i := range milestones {
			milestones[i].ProjectId = project.Id
			milestones[i].Idx = i
		}
		if len(milestones) > 0 {
			if err := tx.Create(&milestones).Error; err != nil {
				return fmt.Errorf("创建里程碑失败: %w", err)
			}
		}

		return nil
	})
}

// GetProject 获取项目详情
func (p *ProjectLogic) GetProject(id int64) (*model.ProjectModel, error) {
	var project model.ProjectModel
	if err := p.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeNotFound, fmt.Sprintf("%d", id), "项目不存在")
		}
		return nil, fmt.Errorf("获取项目详情失败: %w", err)
	}

	return &project, nil
}

// GetProjectMilestones 获取项目里程碑计划（按序号排序）
func (p *ProjectLogic) GetProjectMilestones(projectId int64) ([]model.MilestoneModel, error) {
	var milestones []model.MilestoneModel
	if err := p.db.Where("project_id = ?", projectId).
		Order("idx ASC").
		Find(&milestones).Error; err != nil {
		return nil, fmt.Errorf("获取里程碑列表失败: %w", err)
	}

	return milestones, nil
}

// GetProjects 获取项目列表
func (p *ProjectLogic) GetProjects(participant string, status string, page, pageSize int) ([]model.ProjectModel, int64, error) {
	var projects []model.ProjectModel
	var total int64

	// 构建查询条件
	query := p.db.Model(&model.ProjectModel{})
	if participant != "" {
		query = query.Where("client_address = ? OR freelancer_address = ?", participant, participant)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取项目总数失败: %w", err)
	}

	// 分页查询
	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, 0, fmt.Errorf("获取项目列表失败: %w", err)
	}

	return projects, total, nil
}

// GetProjectStats 获取项目统计信息
func (p *ProjectLogic) GetProjectStats() (map[string]interface{}, error) {
	var totalProjects int64
	p.db.Model(&model.ProjectModel{}).Count(&totalProjects)

	// 统计各状态项目数量
	statusCounts := make(map[string]int64)
	for _, status := range []model.ProjectStatus{
		model.ProjectStatusPending,
		model.ProjectStatusDeploying,
		model.ProjectStatusActive,
		model.ProjectStatusDisputed,
		model.ProjectStatusCancelled,
		model.ProjectStatusCompleted,
		model.ProjectStatusNeedsReview,
	} {
		var count int64
		p.db.Model(&model.ProjectModel{}).Where("status = ?", status).Count(&count)
		statusCounts[string(status)] = count
	}

	// 统计已释放总金额
	var totalReleased int64
	p.db.Model(&model.MilestoneSubmissionModel{}).
		Where("status = ?", model.MilestoneStatusCompleted).
		Select("COALESCE(SUM(release_amount), 0)").
		Scan(&totalReleased)

	return map[string]interface{}{
		"total_projects": totalProjects,
		"by_status":      statusCounts,
		"total_released": totalReleased,
	}, nil
}

// validateProject 验证项目数据
func (p *ProjectLogic) validateProject(project *model.ProjectModel) error {
	if project.Title == "" {
		return NewValidationError(CodeInvalidInput, "", "项目标题不能为空")
	}
	if project.Budget <= 0 {
		return NewValidationError(CodeInvalidBudget, "", "项目预算必须大于0")
	}
	if !common.IsHexAddress(project.ClientAddress) {
		return NewValidationError(CodeInvalidInput, "", "客户地址格式不合法: %s", project.ClientAddress)
	}
	if !common.IsHexAddress(project.FreelancerAddress) {
		return NewValidationError(CodeInvalidInput, "", "自由职业者地址格式不合法: %s", project.FreelancerAddress)
	}
	if project.Deadline.Before(time.Now()) {
		return NewValidationError(CodeInvalidInput, "", "截止时间不能早于当前时间")
	}
	if project.TimelockDays < 1 || project.TimelockDays > 30 {
		return NewValidationError(CodeInvalidInput, "", "时间锁必须在1-30天之间")
	}
	return nil
}

// validateMilestone 验证里程碑数据
func (p *ProjectLogic) validateMilestone(milestone *model.MilestoneModel) error {
	if milestone.Title == "" {
		return NewValidationError(CodeInvalidInput, "", "里程碑标题不能为空")
	}
	if milestone.Percentage < 0 || milestone.Percentage > 100 {
		return NewValidationError(CodeInvalidMilestoneSchedule, "", "里程碑百分比必须在0-100之间")
	}
	return nil
}
