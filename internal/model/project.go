package model

import (
	"time"
)

// ProjectModel 自由职业项目模型
type ProjectModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	Title       string `json:"title" gorm:"not null" binding:"required"`
	Description string `json:"description" gorm:"type:text"`

	// 参与方
	ClientAddress     string `json:"client_address" gorm:"not null"`
	FreelancerAddress string `json:"freelancer_address" gorm:"not null"`

	// 预算（链原生币最小单位）
	Budget int64 `json:"budget" gorm:"not null" binding:"required,min=0"`

	// 截止时间
	Deadline time.Time `json:"deadline" gorm:"not null"`

	// 托管设置
	ReleaseType       ReleaseType       `json:"release_type" gorm:"default:'manual'"`
	DisputeResolution DisputeResolution `json:"dispute_resolution" gorm:"default:'arbitration'"`
	TimelockDays      int               `json:"timelock_days" gorm:"default:7"`

	// 区块链信息
	EscrowAddress   string `json:"escrow_address"`
	TransactionHash string `json:"transaction_hash"`

	// 状态
	Status ProjectStatus `json:"status" gorm:"default:'pending'"`
}

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusPending     ProjectStatus = "pending"      // 待激活
	ProjectStatusDeploying   ProjectStatus = "deploying"    // 托管合约上链中
	ProjectStatusActive      ProjectStatus = "active"       // 进行中
	ProjectStatusDisputed    ProjectStatus = "disputed"     // 争议中
	ProjectStatusResolved    ProjectStatus = "resolved"     // 争议已解决
	ProjectStatusCancelled   ProjectStatus = "cancelled"    // 已取消
	ProjectStatusCompleted   ProjectStatus = "completed"    // 已完成
	ProjectStatusNeedsReview ProjectStatus = "needs_review" // 对账异常，需人工处理
)

// ReleaseType 资金释放方式
type ReleaseType string

const (
	ReleaseTypeManual    ReleaseType = "manual"    // 手动释放
	ReleaseTypeAutomatic ReleaseType = "automatic" // 按时间自动释放
)

// DisputeResolution 争议解决方式
type DisputeResolution string

const (
	DisputeResolutionArbitration DisputeResolution = "arbitration" // 仲裁
	DisputeResolutionMultisig    DisputeResolution = "multisig"    // 多签
	DisputeResolutionDAO         DisputeResolution = "dao"         // DAO投票
)

// TableName 自定义表名
func (ProjectModel) TableName() string {
	return "project"
}
