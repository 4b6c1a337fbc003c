package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devoffus/TrustLink/internal/ledger"
	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/devoffus/TrustLink/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DisputeLogic 争议业务逻辑。争议开启后冻结里程碑验收，
// 解决后还需等待时间锁窗口结束才恢复资金释放。
type DisputeLogic struct {
	db      *gorm.DB
	gateway ledger.Gateway
	events  *EventLogic
	locks   *ProjectLocks
}

// NewDisputeLogic 创建争议业务逻辑
func NewDisputeLogic(db *gorm.DB, gateway ledger.Gateway, events *EventLogic, locks *ProjectLocks) *DisputeLogic {
	return &DisputeLogic{
		db:      db,
		gateway: gateway,
		events:  events,
		locks:   locks,
	}
}

// OpenDispute 开启争议。仅允许进行中的项目，且当前无未解决争议。
func (d *DisputeLogic) OpenDispute(ctx context.Context, projectId int64, reason, initiator string) (*model.DisputeModel, error) {
	if reason == "" {
		return nil, NewValidationError(CodeInvalidInput, fmt.Sprintf("%d", projectId), "争议原因不能为空")
	}

	unlock := d.locks.Lock(projectId)
	defer unlock()

	var project model.ProjectModel
	if err := d.db.First(&project, projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeNotFound, fmt.Sprintf("%d", projectId), "项目不存在")
		}
		return nil, fmt.Errorf("获取项目失败: %w", err)
	}

	// 仅争议双方可发起
	if initiator != project.ClientAddress && initiator != project.FreelancerAddress {
		return nil, NewAuthorizationError(CodeNotAuthorized, fmt.Sprintf("%d", projectId), "仅项目双方可发起争议")
	}

	if project.Status != model.ProjectStatusActive {
		return nil, NewStateConflictError(CodeDisputeActive, fmt.Sprintf("%d", projectId),
			"项目当前状态(%s)不允许开启争议", project.Status)
	}

	// 每轮争议必须完结后才能开新一轮
	open, err := d.ActiveDispute(projectId)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, NewStateConflictError(CodeDisputeActive, fmt.Sprintf("%d", projectId), "已存在未解决的争议")
	}

	// 发出链上争议操作
	handle, err := d.gateway.OpenDispute(ctx, project.EscrowAddress, reason)
	if err != nil {
		return nil, NewLedgerError(fmt.Sprintf("%d", projectId), "链上开启争议失败: %v", err)
	}

	dispute := &model.DisputeModel{
		ProjectId: projectId,
		Reason:    reason,
		OpenedBy:  initiator,
		// 解决方式在开启时从托管设置拷贝，此后不可变
		ResolutionMethod: project.DisputeResolution,
		OpenedAt:         time.Now(),
	}

	op := &model.LedgerOpModel{
		Id:             uuid.NewString(),
		ProjectId:      projectId,
		Kind:           model.LedgerOpOpenDispute,
		MilestoneIndex: -1,
		TxHash:         handle.TxHash,
		Status:         model.LedgerOpStatusPending,
		IssuedAt:       time.Now(),
	}

	// 乐观更新：先冻结本地状态，链上失败再回滚
	err = d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(dispute).Error; err != nil {
			return fmt.Errorf("创建争议记录失败: %w", err)
		}
		if err := tx.Create(op).Error; err != nil {
			return fmt.Errorf("创建链上操作记录失败: %w", err)
		}
		if err := tx.Model(&project).Update("status", model.ProjectStatusDisputed).Error; err != nil {
			return fmt.Errorf("更新项目状态失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.events.Emit(model.EventDisputeOpened, projectId, fmt.Sprintf("%d", dispute.Id), map[string]interface{}{
		"reason":    reason,
		"opened_by": initiator,
		"tx_hash":   handle.TxHash,
	})

	logger.Info("Opened dispute %d for project %d. TxHash: %s", dispute.Id, projectId, handle.TxHash)
	return dispute, nil
}

// ResolveDispute 解决争议。resumed恢复项目，cancelled取消项目；
// 解决后进入时间锁窗口，窗口内资金释放仍被冻结。
func (d *DisputeLogic) ResolveDispute(projectId int64, outcome model.DisputeOutcome) error {
	if outcome != model.DisputeOutcomeResumed && outcome != model.DisputeOutcomeCancelled {
		return NewValidationError(CodeInvalidInput, fmt.Sprintf("%d", projectId), "未知的裁决结果: %s", outcome)
	}

	unlock := d.locks.Lock(projectId)
	defer unlock()

	var project model.ProjectModel
	if err := d.db.First(&project, projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewValidationError(CodeNotFound, fmt.Sprintf("%d", projectId), "项目不存在")
		}
		return fmt.Errorf("获取项目失败: %w", err)
	}

	if project.Status != model.ProjectStatusDisputed {
		return NewStateConflictError(CodeDisputeNotOpen, fmt.Sprintf("%d", projectId), "项目当前没有争议")
	}

	dispute, err := d.ActiveDispute(projectId)
	if err != nil {
		return err
	}
	if dispute == nil {
		return NewStateConflictError(CodeDisputeNotOpen, fmt.Sprintf("%d", projectId), "没有未解决的争议记录")
	}

	now := time.Now()
	newStatus := model.ProjectStatusActive
	if outcome == model.DisputeOutcomeCancelled {
		newStatus = model.ProjectStatusCancelled
	}

	err = d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(dispute).Updates(map[string]interface{}{
			"resolved_at": &now,
			"outcome":     outcome,
		}).Error; err != nil {
			return fmt.Errorf("更新争议记录失败: %w", err)
		}
		if err := tx.Model(&project).Update("status", newStatus).Error; err != nil {
			return fmt.Errorf("更新项目状态失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.events.Emit(model.EventDisputeResolved, projectId, fmt.Sprintf("%d", dispute.Id), map[string]interface{}{
		"outcome":       outcome,
		"timelock_days": project.TimelockDays,
	})

	logger.Info("Resolved dispute %d for project %d with outcome %s", dispute.Id, projectId, outcome)
	return nil
}

// ActiveDispute 获取项目当前未解决的争议，没有则返回nil
func (d *DisputeLogic) ActiveDispute(projectId int64) (*model.DisputeModel, error) {
	var dispute model.DisputeModel
	err := d.db.Where("project_id = ? AND resolved_at IS NULL", projectId).First(&dispute).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询争议记录失败: %w", err)
	}
	return &dispute, nil
}

// GetDisputes 获取项目的全部争议记录
func (d *DisputeLogic) GetDisputes(projectId int64) ([]model.DisputeModel, error) {
	var disputes []model.DisputeModel
	if err := d.db.Where("project_id = ?", projectId).
		Order("opened_at DESC").
		Find(&disputes).Error; err != nil {
		return nil, fmt.Errorf("获取争议列表失败: %w", err)
	}
	return disputes, nil
}

// IsReleaseAllowed 资金释放是否被允许：
// 争议未解决时为false；最近一轮争议解决后，时间锁窗口内仍为false。
func (d *DisputeLogic) IsReleaseAllowed(projectId int64, now time.Time) (bool, error) {
	var project model.ProjectModel
	if err := d.db.First(&project, projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, NewValidationError(CodeNotFound, fmt.Sprintf("%d", projectId), "项目不存在")
		}
		return false, fmt.Errorf("获取项目失败: %w", err)
	}

	if project.Status == model.ProjectStatusDisputed {
		return false, nil
	}

	// 最近一轮已解决的争议决定时间锁边界
	var latest model.DisputeModel
	err := d.db.Where("project_id = ? AND resolved_at IS NOT NULL", projectId).
		Order("resolved_at DESC").
		First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("查询争议记录失败: %w", err)
	}

	boundary := latest.ResolvedAt.Add(time.Duration(project.TimelockDays) * 24 * time.Hour)
	return !now.Before(boundary), nil
}

// ReconcileOpenDispute 对账链上争议操作：
// 确认则补记交易哈希；失败则回滚争议记录并恢复项目状态。
func (d *DisputeLogic) ReconcileOpenDispute(op *model.LedgerOpModel, result *ledger.OpResult) error {
	unlock := d.locks.Lock(op.ProjectId)
	defer unlock()

	now := time.Now()

	if result.State == ledger.OpConfirmed {
		return d.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&model.DisputeModel{}).
				Where("project_id = ? AND resolved_at IS NULL", op.ProjectId).
				Update("transaction_hash", result.TxHash).Error; err != nil {
				return fmt.Errorf("更新争议交易哈希失败: %w", err)
			}
			return markOpResolved(tx, op, model.LedgerOpStatusConfirmed, "", now)
		})
	}

	// 失败回滚：删除乐观创建的争议记录，项目恢复进行中
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ? AND resolved_at IS NULL", op.ProjectId).
			Delete(&model.DisputeModel{}).Error; err != nil {
			return fmt.Errorf("回滚争议记录失败: %w", err)
		}
		if err := tx.Model(&model.ProjectModel{}).
			Where("id = ? AND status = ?", op.ProjectId, model.ProjectStatusDisputed).
			Update("status", model.ProjectStatusActive).Error; err != nil {
			return fmt.Errorf("回滚项目状态失败: %w", err)
		}
		return markOpResolved(tx, op, failureStatus(op), result.Err, now)
	})
	if err != nil {
		return err
	}

	d.events.Emit(model.EventLedgerOpFailed, op.ProjectId, op.Id, map[string]interface{}{
		"kind":  op.Kind,
		"error": result.Err,
	})

	logger.Warn("Rolled back dispute for project %d after ledger failure: %s", op.ProjectId, result.Err)
	return nil
}
