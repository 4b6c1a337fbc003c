package handler

import (
	"time"

	"github.com/devoffus/TrustLink/internal/model"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// NewPagination 计算分页信息
func NewPagination(page, pageSize int, total int64) Pagination {
	totalPage := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		totalPage++
	}
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPage: totalPage}
}

// 项目相关请求模型

// MilestoneRequest 里程碑计划条目
type MilestoneRequest struct {
	Title       string `json:"title" binding:"required"`
	Percentage  int    `json:"percentage" binding:"required"`
	Description string `json:"description"`
}

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Title             string             `json:"title" binding:"required"`
	Description       string             `json:"description"`
	FreelancerAddress string             `json:"freelancer_address" binding:"required"`
	Budget            int64              `json:"budget" binding:"required"`
	Deadline          time.Time          `json:"deadline" binding:"required"`
	ReleaseType       string             `json:"release_type"`
	DisputeResolution string             `json:"dispute_resolution"`
	TimelockDays      int                `json:"timelock_days"`
	Milestones        []MilestoneRequest `json:"milestones" binding:"required"`
}

// 里程碑相关请求模型

// SubmitMilestoneRequest 提交里程碑请求
type SubmitMilestoneRequest struct {
	Description string           `json:"description" binding:"required"`
	Evidence    []model.Evidence `json:"evidence" binding:"required"`
}

// RejectMilestoneRequest 驳回里程碑请求
type RejectMilestoneRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CommentRequest 追加评论请求
type CommentRequest struct {
	Text string `json:"text" binding:"required"`
}

// 争议相关请求模型

// OpenDisputeRequest 开启争议请求
type OpenDisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ResolveDisputeRequest 解决争议请求
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

// 认证相关请求模型

// ChallengeRequest 签发登录挑战请求
type ChallengeRequest struct {
	Address string `json:"address" binding:"required"`
}

// VerifySignatureRequest 验签建会话请求
type VerifySignatureRequest struct {
	Nonce     string `json:"nonce" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// 邀请相关请求模型

// CreateInvitationRequest 签发邀请请求
type CreateInvitationRequest struct {
	ProjectId      int64  `json:"project_id" binding:"required"`
	Email          string `json:"email" binding:"required"`
	InviteeAddress string `json:"invitee_address"`
	Message        string `json:"message" binding:"required"`
}

// DeclineInvitationRequest 拒绝邀请请求
type DeclineInvitationRequest struct {
	Note string `json:"note"`
}

// 响应视图模型

// MilestoneView 里程碑计划条目及派生状态
type MilestoneView struct {
	Index       int    `json:"index"`
	Title       string `json:"title"`
	Percentage  int    `json:"percentage"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
}

// SubmissionView 提交记录视图：JSON列展开为结构化字段
type SubmissionView struct {
	Id              string          `json:"id"`
	ProjectId       int64           `json:"project_id"`
	MilestoneIndex  int             `json:"milestone_index"`
	Description     string          `json:"description"`
	Evidence        []model.Evidence `json:"evidence"`
	Comments        []model.Comment `json:"comments"`
	SubmittedBy     string          `json:"submitted_by"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	Status          string          `json:"status"`
	VerifiedAt      *time.Time      `json:"verified_at,omitempty"`
	VerifiedBy      string          `json:"verified_by,omitempty"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty"`
	RejectedBy      string          `json:"rejected_by,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	ReleaseAmount   int64           `json:"release_amount"`
}

// ToSubmissionView 将提交记录转换为视图模型
func ToSubmissionView(s *model.MilestoneSubmissionModel) SubmissionView {
	evidence, _ := model.DecodeEvidence(s.Evidence)
	comments, _ := model.DecodeComments(s.Comments)

	return SubmissionView{
		Id:              s.Id,
		ProjectId:       s.ProjectId,
		MilestoneIndex:  s.MilestoneIndex,
		Description:     s.Description,
		Evidence:        evidence,
		Comments:        comments,
		SubmittedBy:     s.SubmittedBy,
		SubmittedAt:     s.SubmittedAt,
		Status:          string(s.Status),
		VerifiedAt:      s.VerifiedAt,
		VerifiedBy:      s.VerifiedBy,
		RejectedAt:      s.RejectedAt,
		RejectedBy:      s.RejectedBy,
		RejectionReason: s.RejectionReason,
		TransactionHash: s.TransactionHash,
		ReleaseAmount:   s.ReleaseAmount,
	}
}

// ToSubmissionViewList 批量转换提交记录
func ToSubmissionViewList(submissions []model.MilestoneSubmissionModel) []SubmissionView {
	result := make([]SubmissionView, len(submissions))
	for i := range submissions {
		result[i] = ToSubmissionView(&submissions[i])
	}
	return result
}

// InvitationView 邀请视图：附带派生的过期标记
type InvitationView struct {
	model.InvitationModel
	Expired bool `json:"expired"`
}

// ToInvitationView 将邀请转换为视图模型
func ToInvitationView(inv *model.InvitationModel, now time.Time) InvitationView {
	return InvitationView{InvitationModel: *inv, Expired: inv.IsExpired(now)}
}
