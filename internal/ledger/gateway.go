package ledger

import (
	"context"
)

// OpState 链上操作确认状态
type OpState int

const (
	OpPending   OpState = iota // 尚未确认
	OpConfirmed                // 已确认
	OpFailed                   // 链上执行失败
)

// OpHandle 已发出操作的句柄，确认结果由轮询路径异步解析
type OpHandle struct {
	TxHash string
}

// OpResult 操作确认查询结果
type OpResult struct {
	State         OpState
	TxHash        string
	BlockNumber   uint64
	EscrowAddress string // 仅create_escrow确认后填充
	Err           string // 仅失败时填充
}

// CreateEscrowParams 部署托管合约参数
type CreateEscrowParams struct {
	Client       string
	Freelancer   string
	Budget       int64 // 链原生币最小单位
	Percentages  []int
	ReleaseType  uint8
	DisputeMode  uint8
	TimelockDays int
}

// Gateway 链上托管合约网关。只负责发交易和查确认，不感知本地领域状态。
type Gateway interface {
	// CreateEscrow 部署托管合约并注入预算
	CreateEscrow(ctx context.Context, params CreateEscrowParams) (*OpHandle, error)

	// SubmitMilestone 在托管合约上登记里程碑提交
	SubmitMilestone(ctx context.Context, escrowAddr string, index int) (*OpHandle, error)

	// ApproveMilestone 验收里程碑并触发资金释放
	ApproveMilestone(ctx context.Context, escrowAddr string, index int) (*OpHandle, error)

	// OpenDispute 在托管合约上开启争议
	OpenDispute(ctx context.Context, escrowAddr string, reason string) (*OpHandle, error)

	// OpStatus 查询操作确认状态
	OpStatus(ctx context.Context, txHash string) (*OpResult, error)
}
