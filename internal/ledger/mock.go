package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// MockGateway 内存版网关，用于测试和本地开发。
// 发出的操作保持pending，由调用方通过Confirm/Fail推进，模拟链上异步确认。
type MockGateway struct {
	mu      sync.Mutex
	ops     map[string]*OpResult
	issued  []string
	failAll bool
}

// NewMockGateway 创建内存网关
func NewMockGateway() *MockGateway {
	return &MockGateway{
		ops: make(map[string]*OpResult),
	}
}

// CreateEscrow 记录一笔pending的部署操作
func (m *MockGateway) CreateEscrow(ctx context.Context, params CreateEscrowParams) (*OpHandle, error) {
	return m.issue()
}

// SubmitMilestone 记录一笔pending的里程碑提交操作
func (m *MockGateway) SubmitMilestone(ctx context.Context, escrowAddr string, index int) (*OpHandle, error) {
	return m.issue()
}

// ApproveMilestone 记录一笔pending的验收操作
func (m *MockGateway) ApproveMilestone(ctx context.Context, escrowAddr string, index int) (*OpHandle, error) {
	return m.issue()
}

// OpenDispute 记录一笔pending的争议操作
func (m *MockGateway) OpenDispute(ctx context.Context, escrowAddr string, reason string) (*OpHandle, error) {
	return m.issue()
}

// OpStatus 查询操作状态
func (m *MockGateway) OpStatus(ctx context.Context, txHash string) (*OpResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, exists := m.ops[txHash]
	if !exists {
		return nil, fmt.Errorf("unknown transaction: %s", txHash)
	}

	copied := *result
	return &copied, nil
}

// issue 生成伪交易哈希并登记pending操作
func (m *MockGateway) issue() (*OpHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll {
		return nil, fmt.Errorf("mock gateway: issuance disabled")
	}

	txHash := "0x" + randomHex(32)
	m.ops[txHash] = &OpResult{State: OpPending, TxHash: txHash}
	m.issued = append(m.issued, txHash)

	return &OpHandle{TxHash: txHash}, nil
}

// Confirm 将指定操作推进为已确认
func (m *MockGateway) Confirm(txHash string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if result, exists := m.ops[txHash]; exists {
		result.State = OpConfirmed
		result.BlockNumber = uint64(len(m.issued))
	}
}

// ConfirmWithEscrow 确认部署操作并返回托管合约地址
func (m *MockGateway) ConfirmWithEscrow(txHash string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, exists := m.ops[txHash]
	if !exists {
		return ""
	}
	result.State = OpConfirmed
	result.BlockNumber = uint64(len(m.issued))
	result.EscrowAddress = "0x" + randomHex(20)
	return result.EscrowAddress
}

// Fail 将指定操作推进为失败
func (m *MockGateway) Fail(txHash string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if result, exists := m.ops[txHash]; exists {
		result.State = OpFailed
		result.Err = reason
	}
}

// SetFailAll 让后续所有发出操作直接报错
func (m *MockGateway) SetFailAll(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = fail
}

// LastIssued 最近一次发出的交易哈希
func (m *MockGateway) LastIssued() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.issued) == 0 {
		return ""
	}
	return m.issued[len(m.issued)-1]
}

// randomHex 生成随机十六进制串
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
