package model

import (
	"time"
)

// MilestoneModel 项目里程碑（托管设置中的一项，按百分比加权）
type MilestoneModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId   int64  `json:"project_id" gorm:"not null;index"`
	Idx         int    `json:"idx" gorm:"not null"` // 里程碑序号，从0开始，按序释放
	Title       string `json:"title" gorm:"not null"`
	Percentage  int    `json:"percentage" gorm:"not null"` // 预算占比 0-100
	Description string `json:"description" gorm:"type:text"`
}

// MilestoneStatus 里程碑状态（派生状态，不单独存储）
type MilestoneStatus string

const (
	MilestoneStatusLocked              MilestoneStatus = "locked"               // 前序里程碑未完成
	MilestoneStatusActive              MilestoneStatus = "active"               // 可提交
	MilestoneStatusPendingVerification MilestoneStatus = "pending_verification" // 等待客户验收
	MilestoneStatusCompleted           MilestoneStatus = "completed"            // 已完成
	MilestoneStatusRejected            MilestoneStatus = "rejected"             // 已驳回
)

// TableName 自定义表名
func (MilestoneModel) TableName() string {
	return "milestone"
}
