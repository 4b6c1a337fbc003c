package event

import (
	"errors"
	"fmt"

	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/devoffus/TrustLink/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gorm.io/gorm"
)

// DisputeResolvedProcessor 处理链上裁决事件。
// 多签/DAO模式下裁决在托管合约上完成，这里把结果同步到本地争议记录。
type DisputeResolvedProcessor struct {
	db           *gorm.DB
	disputeLogic *logic.DisputeLogic
}

// NewDisputeResolvedProcessor 创建裁决事件处理器
func NewDisputeResolvedProcessor(db *gorm.DB, disputeLogic *logic.DisputeLogic) *DisputeResolvedProcessor {
	return &DisputeResolvedProcessor{db: db, disputeLogic: disputeLogic}
}

// Topic 事件签名：DisputeResolved(address indexed escrow, uint8 outcome)
func (p *DisputeResolvedProcessor) Topic() common.Hash {
	return EventTopic("DisputeResolved(address,uint8)")
}

// Process 处理单条裁决日志
func (p *DisputeResolvedProcessor) Process(l types.Log) error {
	if len(l.Topics) < 2 || len(l.Data) < 32 {
		return fmt.Errorf("malformed DisputeResolved log %s:%d", l.TxHash.Hex(), l.Index)
	}

	escrowAddr := common.BytesToAddress(l.Topics[1].Bytes()).Hex()

	var project model.ProjectModel
	if err := p.db.First(&project, "escrow_address = ?", escrowAddr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 不是本服务管理的托管合约
			return nil
		}
		return fmt.Errorf("failed to look up project for escrow %s: %w", escrowAddr, err)
	}

	outcome := model.DisputeOutcomeResumed
	if l.Data[31] == 1 {
		outcome = model.DisputeOutcomeCancelled
	}

	err := p.disputeLogic.ResolveDispute(project.Id, outcome)
	if err != nil {
		// 争议已在本地解决过时为幂等重放，静默跳过
		if logic.ErrCode(err) == logic.CodeDisputeNotOpen {
			return nil
		}
		return err
	}

	logger.Info("Synced on-chain dispute resolution for project %d: %s (tx %s)",
		project.Id, outcome, l.TxHash.Hex())
	return nil
}
