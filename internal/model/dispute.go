package model

import (
	"time"
)

// DisputeModel 项目争议记录（一个项目可多轮争议，每轮必须完结后才能开新一轮）
type DisputeModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId int64  `json:"project_id" gorm:"not null;index"`
	Reason    string `json:"reason" gorm:"type:text;not null"`
	OpenedBy  string `json:"opened_by" gorm:"not null"`

	// 解决方式在开启时从托管设置拷贝，此后不可变
	ResolutionMethod DisputeResolution `json:"resolution_method" gorm:"not null"`

	OpenedAt   time.Time      `json:"opened_at" gorm:"not null"`
	ResolvedAt *time.Time     `json:"resolved_at"`
	Outcome    DisputeOutcome `json:"outcome"`

	// 区块链信息
	TransactionHash string `json:"transaction_hash"`
}

// DisputeOutcome 争议裁决结果
type DisputeOutcome string

const (
	DisputeOutcomeResumed   DisputeOutcome = "resumed"   // 恢复项目
	DisputeOutcomeCancelled DisputeOutcome = "cancelled" // 取消项目
)

// IsOpen 争议是否仍未解决
func (d *DisputeModel) IsOpen() bool {
	return d.ResolvedAt == nil
}

// TableName 自定义表名
func (DisputeModel) TableName() string {
	return "dispute"
}
