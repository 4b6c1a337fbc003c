package task

import (
	"context"
	"sync"
	"time"

	"github.com/devoffus/TrustLink/internal/config"
	"github.com/devoffus/TrustLink/internal/ledger"
	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/devoffus/TrustLink/internal/model"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// LedgerConfirmJob 链上操作确认任务。
// 轮询待确认操作，查询链上状态后分发对账；超时未确认的操作按失败回滚。
type LedgerConfirmJob struct {
	db       *gorm.DB
	gateway  ledger.Gateway
	escrows  *logic.EscrowLogic
	disputes *logic.DisputeLogic
	config   *config.Config
}

// NewLedgerConfirmJob 创建链上操作确认任务
func NewLedgerConfirmJob(db *gorm.DB, gateway ledger.Gateway, escrows *logic.EscrowLogic,
	disputes *logic.DisputeLogic, cfg *config.Config) *LedgerConfirmJob {
	return &LedgerConfirmJob{
		db:       db,
		gateway:  gateway,
		escrows:  escrows,
		disputes: disputes,
		config:   cfg,
	}
}

// GetName 获取任务名称
func (j *LedgerConfirmJob) GetName() string {
	return "ledger_confirm_poller"
}

// GetSchedule 获取调度配置
func (j *LedgerConfirmJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Escrow.PollInterval) * time.Second)
}

// Execute 执行任务
func (j *LedgerConfirmJob) Execute() {
	var ops []model.LedgerOpModel
	if err := j.db.Where("status = ?", model.LedgerOpStatusPending).
		Order("issued_at ASC").
		Find(&ops).Error; err != nil {
		logger.Error("Failed to fetch pending ledger ops: %v", err)
		return
	}

	if len(ops) == 0 {
		return
	}

	pool, err := ants.NewPool(j.config.Escrow.WorkerPool)
	if err != nil {
		logger.Error("Failed to create reconcile pool: %v", err)
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range ops {
		op := ops[i]
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			j.resolveOp(&op)
		}); err != nil {
			wg.Done()
			logger.Error("Failed to submit op %s to pool: %v", op.Id, err)
		}
	}
	wg.Wait()
}

// resolveOp 查询单个操作的确认状态并分发对账
func (j *LedgerConfirmJob) resolveOp(op *model.LedgerOpModel) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := j.gateway.OpStatus(ctx, op.TxHash)
	if err != nil {
		logger.Warn("Failed to query op %s (%s): %v", op.Id, op.TxHash, err)
		return
	}

	if result.State == ledger.OpPending {
		// 超过确认时限仍未落块的操作按超时回滚
		deadline := op.IssuedAt.Add(time.Duration(j.config.Escrow.OpTimeout) * time.Minute)
		if time.Now().Before(deadline) {
			return
		}
		op.Status = model.LedgerOpStatusTimeout
		result = &ledger.OpResult{
			State:  ledger.OpFailed,
			TxHash: op.TxHash,
			Err:    "confirmation timeout",
		}
		logger.Warn("Op %s timed out after %d minutes, rolling back", op.Id, j.config.Escrow.OpTimeout)
	}

	j.reconcile(op, result)
}

// reconcile 按操作类型分发对账
func (j *LedgerConfirmJob) reconcile(op *model.LedgerOpModel, result *ledger.OpResult) {
	var err error
	switch op.Kind {
	case model.LedgerOpOpenDispute:
		err = j.disputes.ReconcileOpenDispute(op, result)
	default:
		err = j.escrows.ReconcileOp(op, result)
	}
	if err != nil {
		logger.Error("Reconciliation error for op %s: %v", op.Id, err)
	}
}
