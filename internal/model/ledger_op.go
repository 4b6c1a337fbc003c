package model

import (
	"time"
)

// LedgerOpModel 已发出的链上操作，异步等待确认
type LedgerOpModel struct {
	Id        string    `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId      int64        `json:"project_id" gorm:"not null;index"`
	Kind           LedgerOpKind `json:"kind" gorm:"not null"`
	MilestoneIndex int          `json:"milestone_index" gorm:"default:-1"` // 仅里程碑操作使用
	SubmissionId   string       `json:"submission_id"`                     // 仅提交/验收操作使用

	// 区块链信息
	TxHash string `json:"tx_hash" gorm:"index"`

	// 状态
	Status   LedgerOpStatus `json:"status" gorm:"default:'pending';index"`
	IssuedAt time.Time      `json:"issued_at" gorm:"not null"`

	ResolvedAt   *time.Time `json:"resolved_at"`
	FailureError string     `json:"failure_error" gorm:"type:text"`
}

// LedgerOpKind 链上操作类型
type LedgerOpKind string

const (
	LedgerOpCreateEscrow     LedgerOpKind = "create_escrow"     // 部署托管合约
	LedgerOpSubmitMilestone  LedgerOpKind = "submit_milestone"  // 提交里程碑
	LedgerOpApproveMilestone LedgerOpKind = "approve_milestone" // 验收并释放资金
	LedgerOpOpenDispute      LedgerOpKind = "open_dispute"      // 开启争议
)

// LedgerOpStatus 链上操作状态
type LedgerOpStatus string

const (
	LedgerOpStatusPending   LedgerOpStatus = "pending"   // 已发出，等待确认
	LedgerOpStatusConfirmed LedgerOpStatus = "confirmed" // 已确认
	LedgerOpStatusFailed    LedgerOpStatus = "failed"    // 链上失败
	LedgerOpStatusTimeout   LedgerOpStatus = "timeout"   // 超时未确认（策略性失败）
)

// IsResolved 操作是否已到达终态
func (op *LedgerOpModel) IsResolved() bool {
	return op.Status != LedgerOpStatusPending
}

// TableName 自定义表名
func (LedgerOpModel) TableName() string {
	return "ledger_op"
}
