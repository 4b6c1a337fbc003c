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

// EscrowLogic 托管引擎：项目激活、里程碑提交/验收/驳回、链上操作对账。
// 同一项目的写操作全部串行化；链上操作先乐观更新本地状态，确认后落定，失败回滚。
type EscrowLogic struct {
	db       *gorm.DB
	gateway  ledger.Gateway
	events   *EventLogic
	disputes *DisputeLogic
	locks    *ProjectLocks
}

// ReleaseReceipt 验收回执。资金释放在链上确认后才最终落定。
type ReleaseReceipt struct {
	ProjectId      int64  `json:"project_id"`
	MilestoneIndex int    `json:"milestone_index"`
	SubmissionId   string `json:"submission_id"`
	Amount         int64  `json:"amount"`
	TxHash         string `json:"tx_hash"`
}

// NewEscrowLogic 创建托管引擎
func NewEscrowLogic(db *gorm.DB, gateway ledger.Gateway, events *EventLogic, disputes *DisputeLogic, locks *ProjectLocks) *EscrowLogic {
	return &EscrowLogic{
		db:       db,
		gateway:  gateway,
		events:   events,
		disputes: disputes,
		locks:    locks,
	}
}

// Activate 激活项目：校验里程碑计划后部署托管合约。
// 百分比总和必须恰好为100，此处只校验不自动修正。
func (e *EscrowLogic) Activate(ctx context.Context, projectId int64) (*model.LedgerOpModel, error) {
	unlock := e.locks.Lock(projectId)
	defer unlock()

	var project model.ProjectModel
	if err := e.db.First(&project, projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeNotFound, fmt.Sprintf("%d", projectId), "项目不存在")
		}
		return nil, fmt.Errorf("获取项目失败: %w", err)
	}

	if project.Status != model.ProjectStatusPending {
		return nil, NewStateConflictError(CodeInvalidInput, fmt.Sprintf("%d", projectId),
			"项目当前状态(%s)不允许激活", project.Status)
	}

	if project.Budget <= 0 {
		return nil, NewValidationError(CodeInvalidBudget, fmt.Sprintf("%d", projectId), "项目预算必须大于0")
	}
	if project.ClientAddress == project.FreelancerAddress {
		return nil, NewValidationError(CodeInvalidInput, fmt.Sprintf("%d", projectId), "客户与自由职业者地址不能相同")
	}

	var milestones []model.MilestoneModel
	if err := e.db.Where("project_id = ?", projectId).Order("idx ASC").Find(&milestones).Error; err != nil {
		return nil, fmt.Errorf("获取里程碑列表失败: %w", err)
	}
	if len(milestones) == 0 {
		return nil, NewValidationError(CodeInvalidMilestoneSchedule, fmt.Sprintf("%d", projectId), "项目没有里程碑计划")
	}

	percentages := make([]int, len(milestones))
	total := 0
	for i, m := range milestones {
		percentages[i] = m.Percentage
		total += m.Percentage
	}
	if total != 100 {
		return nil, NewValidationError(CodeInvalidMilestoneSchedule, fmt.Sprintf("%d", projectId),
			"里程碑百分比总和必须为100，当前为%d", total)
	}

	// 发出链上部署操作
	handle, err := e.gateway.CreateEscrow(ctx, ledger.CreateEscrowParams{
		Client:       project.ClientAddress,
		Freelancer:   project.FreelancerAddress,
		Budget:       project.Budget,
		Percentages:  percentages,
		ReleaseType:  releaseTypeCode(project.ReleaseType),
		DisputeMode:  disputeModeCode(project.DisputeResolution),
		TimelockDays: project.TimelockDays,
	})
	if err != nil {
		return nil, NewLedgerError(fmt.Sprintf("%d", projectId), "链上部署托管合约失败: %v", err)
	}

	op := &model.LedgerOpModel{
		Id:             uuid.NewString(),
		ProjectId:      projectId,
		Kind:           model.LedgerOpCreateEscrow,
		MilestoneIndex: -1,
		TxHash:         handle.TxHash,
		Status:         model.LedgerOpStatusPending,
		IssuedAt:       time.Now(),
	}

	// 乐观更新：项目进入上链中，确认后转为进行中
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(op).Error; err != nil {
			return fmt.Errorf("创建链上操作记录失败: %w", err)
		}
		if err := tx.Model(&project).Update("status", model.ProjectStatusDeploying).Error; err != nil {
			return fmt.Errorf("更新项目状态失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Activating project %d. TxHash: %s", projectId, handle.TxHash)
	return op, nil
}

// SubmitMilestone 自由职业者提交里程碑交付。
// 本地先乐观转入待验收，链上确认/失败后对账。
func (e *EscrowLogic) SubmitMilestone(ctx context.Context, projectId int64, index int, description string,
	evidence []model.Evidence, submitter string) (*model.MilestoneSubmissionModel, error) {

	entityId := fmt.Sprintf("%d/%d", projectId, index)

	if description == "" {
		return nil, NewValidationError(CodeInvalidInput, entityId, "交付说明不能为空")
	}
	if len(evidence) == 0 {
		return nil, NewValidationError(CodeEmptyEvidence, entityId, "交付证据不能为空")
	}
	for _, ev := range evidence {
		if err := ev.Validate(); err != nil {
			return nil, NewValidationError(CodeInvalidInput, entityId, "证据不合法: %v", err)
		}
	}

	unlock := e.locks.Lock(projectId)
	defer unlock()

	var project model.ProjectModel
	if err := e.db.First(&project, projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeNotFound, entityId, "项目不存在")
		}
		return nil, fmt.Errorf("获取项目失败: %w", err)
	}

	// 争议只冻结验收，不冻结提交
	if project.Status != model.ProjectStatusActive && project.Status != model.ProjectStatusDisputed {
		return nil, NewStateConflictError(CodeMilestoneNotActive, entityId,
			"项目当前状态(%s)不允许提交里程碑", project.Status)
	}

	if submitter != project.FreelancerAddress {
		return nil, NewAuthorizationError(CodeNotAuthorized, entityId, "仅自由职业者可提交里程碑")
	}

	status, err := e.milestoneStatus(e.db, projectId, index)
	if err != nil {
		return nil, err
	}
	if status == model.MilestoneStatusPendingVerification {
		return nil, NewStateConflictError(CodeDuplicateSubmission, entityId, "该里程碑已有待验收的提交")
	}
	if status != model.MilestoneStatusActive {
		return nil, NewStateConflictError(CodeMilestoneNotActive, entityId,
			"里程碑当前状态(%s)不允许提交", status)
	}

	// 发出链上提交操作
	handle, err := e.gateway.SubmitMilestone(ctx, project.EscrowAddress, index)
	if err != nil {
		return nil, NewLedgerError(entityId, "链上提交里程碑失败: %v", err)
	}

	encodedEvidence, err := model.EncodeEvidence(evidence)
	if err != nil {
		return nil, fmt.Errorf("序列化证据失败: %w", err)
	}

	now := time.Now()
	submission := &model.MilestoneSubmissionModel{
		Id:             uuid.NewString(),
		ProjectId:      projectId,
		MilestoneIndex: index,
		Description:    description,
		Evidence:       encodedEvidence,
		SubmittedBy:    submitter,
		SubmittedAt:    now,
		Status:         model.MilestoneStatusPendingVerification,
	}

	op := &model.LedgerOpModel{
		Id:             uuid.NewString(),
		ProjectId:      projectId,
		Kind:           model.LedgerOpSubmitMilestone,
		MilestoneIndex: index,
		SubmissionId:   submission.Id,
		TxHash:         handle.TxHash,
		Status:         model.LedgerOpStatusPending,
		IssuedAt:       now,
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(submission).Error; err != nil {
			return fmt.Errorf("创建提交记录失败: %w", err)
		}
		if err := tx.Create(op).Error; err != nil {
			return fmt.Errorf("创建链上操作记录失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.events.Emit(model.EventMilestoneSubmitted, projectId, submission.Id, map[string]interface{}{
		"milestone_index": index,
		"submitted_by":    submitter,
		"tx_hash":         handle.TxHash,
	})

	logger.Info("Submitted milestone %d for project %d. Submission: %s, TxHash: %s",
		index, projectId, submission.Id, handle.TxHash)
	return submission, nil
}

// VerifyMilestone 客户验收里程碑并触发资金释放。
// 里程碑在链上确认前保持待验收，确认后才落定为已完成。
func (e *EscrowLogic) VerifyMilestone(ctx context.Context, projectId int64, submissionId, verifier string) (*ReleaseReceipt, error) {
	unlock := e.locks.Lock(projectId)
	defer unlock()

	project, submission, err := e.loadSubmission(projectId, submissionId)
	if err != nil {
		return nil, err
	}

	if submission.Status != model.MilestoneStatusPendingVerification {
		return nil, NewStateConflictError(CodeNotPendingVerification, submissionId,
			"提交当前状态(%s)不允许验收", submission.Status)
	}
	if verifier != project.ClientAddress {
		return nil, NewAuthorizationError(CodeNotAuthorized, submissionId, "仅客户可验收里程碑")
	}
	if project.Status == model.ProjectStatusDisputed {
		return nil, NewStateConflictError(CodeDisputeActive, submissionId, "争议期间禁止验收")
	}
	if project.Status != model.ProjectStatusActive {
		return nil, NewStateConflictError(CodeMilestoneNotActive, submissionId,
			"项目当前状态(%s)不允许验收", project.Status)
	}

	// 争议冻结验收；争议解决后时间锁窗口内同样冻结
	allowed, err := e.disputes.IsReleaseAllowed(projectId, time.Now())
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, NewStateConflictError(CodeDisputeActive, submissionId, "争议或时间锁冻结了资金释放")
	}

	// 已有验收确认中的操作时拒绝重复验收
	pending, err := e.hasPendingOp(submissionId, model.LedgerOpApproveMilestone)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, NewStateConflictError(CodeNotPendingVerification, submissionId, "该提交的验收操作正在链上确认中")
	}

	amount, err := e.releaseAmountFor(projectId, project.Budget, submission.MilestoneIndex)
	if err != nil {
		return nil, err
	}

	// 发出链上验收操作
	handle, err := e.gateway.ApproveMilestone(ctx, project.EscrowAddress, submission.MilestoneIndex)
	if err != nil {
		return nil, NewLedgerError(submissionId, "链上验收里程碑失败: %v", err)
	}

	op := &model.LedgerOpModel{
		Id:             uuid.NewString(),
		ProjectId:      projectId,
		Kind:           model.LedgerOpApproveMilestone,
		MilestoneIndex: submission.MilestoneIndex,
		SubmissionId:   submissionId,
		TxHash:         handle.TxHash,
		Status:         model.LedgerOpStatusPending,
		IssuedAt:       time.Now(),
	}
	if err := e.db.Create(op).Error; err != nil {
		return nil, fmt.Errorf("创建链上操作记录失败: %w", err)
	}

	logger.Info("Verifying milestone %d for project %d. Amount: %d, TxHash: %s",
		submission.MilestoneIndex, projectId, amount, handle.TxHash)

	return &ReleaseReceipt{
		ProjectId:      projectId,
		MilestoneIndex: submission.MilestoneIndex,
		SubmissionId:   submissionId,
		Amount:         amount,
		TxHash:         handle.TxHash,
	}, nil
}

// RejectMilestone 客户驳回里程碑提交。纯本地状态变更，不触链；
// 里程碑回到可提交状态，自由职业者可立即重新提交。
func (e *EscrowLogic) RejectMilestone(projectId int64, submissionId, reason, rejecter string) error {
	if reason == "" {
		return NewValidationError(CodeInvalidInput, submissionId, "驳回原因不能为空")
	}

	unlock := e.locks.Lock(projectId)
	defer unlock()

	project, submission, err := e.loadSubmission(projectId, submissionId)
	if err != nil {
		return err
	}

	if submission.Status != model.MilestoneStatusPendingVerification {
		return NewStateConflictError(CodeNotPendingVerification, submissionId,
			"提交当前状态(%s)不允许驳回", submission.Status)
	}
	if rejecter != project.ClientAddress {
		return NewAuthorizationError(CodeNotAuthorized, submissionId, "仅客户可驳回里程碑")
	}

	// 验收确认中的提交不允许驳回
	pending, err := e.hasPendingOp(submissionId, model.LedgerOpApproveMilestone)
	if err != nil {
		return err
	}
	if pending {
		return NewStateConflictError(CodeNotPendingVerification, submissionId, "该提交的验收操作正在链上确认中")
	}

	now := time.Now()
	if err := e.appendSystemComment(submission, fmt.Sprintf("里程碑被驳回: %s", reason), now); err != nil {
		return err
	}

	if err := e.db.Model(submission).Updates(map[string]interface{}{
		"status":           model.MilestoneStatusRejected,
		"rejected_at":      &now,
		"rejected_by":      rejecter,
		"rejection_reason": reason,
		"comments":         submission.Comments,
	}).Error; err != nil {
		return fmt.Errorf("更新提交记录失败: %w", err)
	}

	e.events.Emit(model.EventMilestoneRejected, projectId, submissionId, map[string]interface{}{
		"milestone_index": submission.MilestoneIndex,
		"reason":          reason,
		"rejected_by":     rejecter,
	})

	logger.Info("Rejected submission %s for project %d: %s", submissionId, projectId, reason)
	return nil
}

// MilestoneStatus 查询里程碑派生状态（无锁快照读）
func (e *EscrowLogic) MilestoneStatus(projectId int64, index int) (model.MilestoneStatus, error) {
	return e.milestoneStatus(e.db, projectId, index)
}

// milestoneStatus 派生里程碑状态：
// 前序未完成则锁定；无提交或最新提交被驳回则可提交；否则镜像最新提交状态。
func (e *EscrowLogic) milestoneStatus(db *gorm.DB, projectId int64, index int) (model.MilestoneStatus, error) {
	var count int64
	if err := db.Model(&model.MilestoneModel{}).
		Where("project_id = ?", projectId).
		Count(&count).Error; err != nil {
		return "", fmt.Errorf("获取里程碑数量失败: %w", err)
	}
	if index < 0 || int64(index) >= count {
		return "", NewValidationError(CodeNotFound, fmt.Sprintf("%d/%d", projectId, index), "里程碑序号越界")
	}

	// 前序里程碑必须全部完成（按序释放）
	if index > 0 {
		var completed int64
		if err := db.Model(&model.MilestoneSubmissionModel{}).
			Where("project_id = ? AND milestone_index < ? AND status = ?",
				projectId, index, model.MilestoneStatusCompleted).
			Distinct("milestone_index").
			Count(&completed).Error; err != nil {
			return "", fmt.Errorf("统计已完成里程碑失败: %w", err)
		}
		if completed < int64(index) {
			return model.MilestoneStatusLocked, nil
		}
	}

	var latest model.MilestoneSubmissionModel
	err := db.Where("project_id = ? AND milestone_index = ?", projectId, index).
		Order("submitted_at DESC").
		First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.MilestoneStatusActive, nil
		}
		return "", fmt.Errorf("查询提交记录失败: %w", err)
	}

	// 被驳回的提交允许重新提交
	if latest.Status == model.MilestoneStatusRejected {
		return model.MilestoneStatusActive, nil
	}

	return latest.Status, nil
}

// GetSubmission 获取提交详情
func (e *EscrowLogic) GetSubmission(submissionId string) (*model.MilestoneSubmissionModel, error) {
	var submission model.MilestoneSubmissionModel
	if err := e.db.First(&submission, "id = ?", submissionId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeNotFound, submissionId, "提交记录不存在")
		}
		return nil, fmt.Errorf("获取提交记录失败: %w", err)
	}
	return &submission, nil
}

// GetLedgerOps 获取项目的链上操作历史（交易记录）
func (e *EscrowLogic) GetLedgerOps(projectId int64) ([]model.LedgerOpModel, error) {
	var ops []model.LedgerOpModel
	if err := e.db.Where("project_id = ?", projectId).
		Order("issued_at DESC").
		Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("获取链上操作列表失败: %w", err)
	}
	return ops, nil
}

// GetSubmissions 获取项目的全部提交记录
func (e *EscrowLogic) GetSubmissions(projectId int64) ([]model.MilestoneSubmissionModel, error) {
	var submissions []model.MilestoneSubmissionModel
	if err := e.db.Where("project_id = ?", projectId).
		Order("submitted_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("获取提交列表失败: %w", err)
	}
	return submissions, nil
}

// AppendComment 向提交追加评论
func (e *EscrowLogic) AppendComment(submissionId, author, text string) error {
	if text == "" {
		return NewValidationError(CodeInvalidInput, submissionId, "评论内容不能为空")
	}

	submission, err := e.GetSubmission(submissionId)
	if err != nil {
		return err
	}

	unlock := e.locks.Lock(submission.ProjectId)
	defer unlock()

	comments, err := model.DecodeComments(submission.Comments)
	if err != nil {
		return fmt.Errorf("解析评论失败: %w", err)
	}
	comments = append(comments, model.Comment{Author: author, Text: text, Timestamp: time.Now()})

	encoded, err := model.EncodeComments(comments)
	if err != nil {
		return fmt.Errorf("序列化评论失败: %w", err)
	}

	if err := e.db.Model(submission).Update("comments", encoded).Error; err != nil {
		return fmt.Errorf("更新评论失败: %w", err)
	}
	return nil
}

// ReleaseAmount 计算单个里程碑的释放金额（定点整数运算）。
// 舍入余数全部归入最后一个里程碑，保证各里程碑金额之和恰好等于预算。
func ReleaseAmount(budget int64, percentages []int, index int) int64 {
	if index < 0 || index >= len(percentages) {
		return 0
	}

	if index == len(percentages)-1 {
		var released int64
		for i := 0; i < len(percentages)-1; i++ {
			released += budget * int64(percentages[i]) / 100
		}
		return budget - released
	}

	return budget * int64(percentages[index]) / 100
}

// releaseAmountFor 加载里程碑计划并计算指定序号的释放金额
func (e *EscrowLogic) releaseAmountFor(projectId int64, budget int64, index int) (int64, error) {
	var milestones []model.MilestoneModel
	if err := e.db.Where("project_id = ?", projectId).Order("idx ASC").Find(&milestones).Error; err != nil {
		return 0, fmt.Errorf("获取里程碑列表失败: %w", err)
	}

	percentages := make([]int, len(milestones))
	for i, m := range milestones {
		percentages[i] = m.Percentage
	}

	return ReleaseAmount(budget, percentages, index), nil
}

// ReconcileOp 对账已解析的链上操作。确认则落定乐观状态，失败/超时则回滚。
// 按操作ID幂等：进程重启后重放安全。
func (e *EscrowLogic) ReconcileOp(op *model.LedgerOpModel, result *ledger.OpResult) error {
	unlock := e.locks.Lock(op.ProjectId)
	defer unlock()

	// 幂等保护：重载操作记录，已到达终态则跳过
	var current model.LedgerOpModel
	if err := e.db.First(&current, "id = ?", op.Id).Error; err != nil {
		return fmt.Errorf("重载链上操作记录失败: %w", err)
	}
	if current.IsResolved() {
		logger.Debug("Op %s already resolved (%s), skipping", op.Id, current.Status)
		return nil
	}

	var err error
	switch op.Kind {
	case model.LedgerOpCreateEscrow:
		err = e.reconcileCreateEscrow(op, result)
	case model.LedgerOpSubmitMilestone:
		err = e.reconcileSubmitMilestone(op, result)
	case model.LedgerOpApproveMilestone:
		err = e.reconcileApproveMilestone(op, result)
	default:
		err = fmt.Errorf("未知的链上操作类型: %s", op.Kind)
	}

	// 对账失败不猜测结果：项目转入needs_review等待人工处理
	if err != nil {
		logger.Error("Reconciliation failed for op %s (project %d): %v", op.Id, op.ProjectId, err)
		if updateErr := e.db.Model(&model.ProjectModel{}).
			Where("id = ?", op.ProjectId).
			Update("status", model.ProjectStatusNeedsReview).Error; updateErr != nil {
			logger.Error("Failed to mark project %d for review: %v", op.ProjectId, updateErr)
		}
		return err
	}

	return nil
}

// reconcileCreateEscrow 对账托管合约部署
func (e *EscrowLogic) reconcileCreateEscrow(op *model.LedgerOpModel, result *ledger.OpResult) error {
	now := time.Now()

	if result.State == ledger.OpConfirmed {
		err := e.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&model.ProjectModel{}).
				Where("id = ?", op.ProjectId).
				Updates(map[string]interface{}{
					"status":           model.ProjectStatusActive,
					"transaction_hash": result.TxHash,
					"escrow_address":   result.EscrowAddress,
				}).Error; err != nil {
				return fmt.Errorf("更新项目失败: %w", err)
			}
			return markOpResolved(tx, op, model.LedgerOpStatusConfirmed, "", now)
		})
		if err != nil {
			return err
		}

		e.events.Emit(model.EventEscrowActivated, op.ProjectId, "", map[string]interface{}{
			"tx_hash":        result.TxHash,
			"escrow_address": result.EscrowAddress,
		})
		logger.Info("Escrow confirmed for project %d at %s", op.ProjectId, result.EscrowAddress)
		return nil
	}

	// 失败回滚：项目退回待激活
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.ProjectModel{}).
			Where("id = ? AND status = ?", op.ProjectId, model.ProjectStatusDeploying).
			Update("status", model.ProjectStatusPending).Error; err != nil {
			return fmt.Errorf("回滚项目状态失败: %w", err)
		}
		return markOpResolved(tx, op, failureStatus(op), result.Err, now)
	})
	if err != nil {
		return err
	}

	e.emitOpFailed(op, result)
	return nil
}

// reconcileSubmitMilestone 对账里程碑提交
func (e *EscrowLogic) reconcileSubmitMilestone(op *model.LedgerOpModel, result *ledger.OpResult) error {
	now := time.Now()

	if result.State == ledger.OpConfirmed {
		return e.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&model.MilestoneSubmissionModel{}).
				Where("id = ?", op.SubmissionId).
				Update("transaction_hash", result.TxHash).Error; err != nil {
				return fmt.Errorf("更新提交交易哈希失败: %w", err)
			}
			return markOpResolved(tx, op, model.LedgerOpStatusConfirmed, "", now)
		})
	}

	// 失败回滚：乐观创建的提交标记为驳回（系统原因），里程碑回到可提交
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.MilestoneSubmissionModel{}).
			Where("id = ? AND status = ?", op.SubmissionId, model.MilestoneStatusPendingVerification).
			Updates(map[string]interface{}{
				"status":           model.MilestoneStatusRejected,
				"rejected_at":      &now,
				"rejected_by":      "system",
				"rejection_reason": fmt.Sprintf("链上提交失败: %s", result.Err),
			}).Error; err != nil {
			return fmt.Errorf("回滚提交记录失败: %w", err)
		}
		return markOpResolved(tx, op, failureStatus(op), result.Err, now)
	})
	if err != nil {
		return err
	}

	e.emitOpFailed(op, result)
	return nil
}

// reconcileApproveMilestone 对账里程碑验收。
// 确认后提交落定为已完成并记录释放金额；失败则提交保持待验收，无需回滚。
func (e *EscrowLogic) reconcileApproveMilestone(op *model.LedgerOpModel, result *ledger.OpResult) error {
	now := time.Now()

	if result.State != ledger.OpConfirmed {
		if err := e.db.Transaction(func(tx *gorm.DB) error {
			return markOpResolved(tx, op, failureStatus(op), result.Err, now)
		}); err != nil {
			return err
		}
		e.emitOpFailed(op, result)
		return nil
	}

	var project model.ProjectModel
	if err := e.db.First(&project, op.ProjectId).Error; err != nil {
		return fmt.Errorf("获取项目失败: %w", err)
	}

	var submission model.MilestoneSubmissionModel
	if err := e.db.First(&submission, "id = ?", op.SubmissionId).Error; err != nil {
		return fmt.Errorf("获取提交记录失败: %w", err)
	}

	amount, err := e.releaseAmountFor(op.ProjectId, project.Budget, op.MilestoneIndex)
	if err != nil {
		return err
	}

	if err := e.appendSystemComment(&submission,
		fmt.Sprintf("里程碑验收通过，释放金额 %d", amount), now); err != nil {
		return err
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&submission).Updates(map[string]interface{}{
			"status":           model.MilestoneStatusCompleted,
			"verified_at":      &now,
			"verified_by":      project.ClientAddress,
			"transaction_hash": result.TxHash,
			"release_amount":   amount,
			"comments":         submission.Comments,
		}).Error; err != nil {
			return fmt.Errorf("更新提交记录失败: %w", err)
		}
		return markOpResolved(tx, op, model.LedgerOpStatusConfirmed, "", now)
	})
	if err != nil {
		return err
	}

	e.events.Emit(model.EventMilestoneVerified, op.ProjectId, op.SubmissionId, map[string]interface{}{
		"milestone_index": op.MilestoneIndex,
		"amount":          amount,
		"tx_hash":         result.TxHash,
	})

	// 全部里程碑完成后项目落定为已完成
	if err := e.maybeCompleteProject(op.ProjectId); err != nil {
		return err
	}

	logger.Info("Milestone %d verified for project %d. Released: %d", op.MilestoneIndex, op.ProjectId, amount)
	return nil
}

// maybeCompleteProject 检查项目是否全部里程碑完成
func (e *EscrowLogic) maybeCompleteProject(projectId int64) error {
	var total int64
	if err := e.db.Model(&model.MilestoneModel{}).
		Where("project_id = ?", projectId).
		Count(&total).Error; err != nil {
		return fmt.Errorf("获取里程碑数量失败: %w", err)
	}

	var completed int64
	if err := e.db.Model(&model.MilestoneSubmissionModel{}).
		Where("project_id = ? AND status = ?", projectId, model.MilestoneStatusCompleted).
		Distinct("milestone_index").
		Count(&completed).Error; err != nil {
		return fmt.Errorf("统计已完成里程碑失败: %w", err)
	}

	if total == 0 || completed < total {
		return nil
	}

	if err := e.db.Model(&model.ProjectModel{}).
		Where("id = ?", projectId).
		Update("status", model.ProjectStatusCompleted).Error; err != nil {
		return fmt.Errorf("更新项目状态失败: %w", err)
	}

	e.events.Emit(model.EventProjectCompleted, projectId, "", nil)
	logger.Info("Project %d completed: all milestones released", projectId)
	return nil
}

// loadSubmission 加载项目及其提交记录
func (e *EscrowLogic) loadSubmission(projectId int64, submissionId string) (*model.ProjectModel, *model.MilestoneSubmissionModel, error) {
	var project model.ProjectModel
	if err := e.db.First(&project, projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, NewValidationError(CodeNotFound, fmt.Sprintf("%d", projectId), "项目不存在")
		}
		return nil, nil, fmt.Errorf("获取项目失败: %w", err)
	}

	var submission model.MilestoneSubmissionModel
	if err := e.db.First(&submission, "id = ? AND project_id = ?", submissionId, projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, NewValidationError(CodeNotFound, submissionId, "提交记录不存在")
		}
		return nil, nil, fmt.Errorf("获取提交记录失败: %w", err)
	}

	return &project, &submission, nil
}

// hasPendingOp 检查提交是否有确认中的链上操作
func (e *EscrowLogic) hasPendingOp(submissionId string, kind model.LedgerOpKind) (bool, error) {
	var count int64
	if err := e.db.Model(&model.LedgerOpModel{}).
		Where("submission_id = ? AND kind = ? AND status = ?",
			submissionId, kind, model.LedgerOpStatusPending).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("查询链上操作记录失败: %w", err)
	}
	return count > 0, nil
}

// appendSystemComment 追加系统评论到提交（仅修改内存对象，由调用方落库）
func (e *EscrowLogic) appendSystemComment(submission *model.MilestoneSubmissionModel, text string, now time.Time) error {
	comments, err := model.DecodeComments(submission.Comments)
	if err != nil {
		return fmt.Errorf("解析评论失败: %w", err)
	}
	comments = append(comments, model.Comment{Author: "system", Text: text, Timestamp: now})

	encoded, err := model.EncodeComments(comments)
	if err != nil {
		return fmt.Errorf("序列化评论失败: %w", err)
	}
	submission.Comments = encoded
	return nil
}

// emitOpFailed 发出链上操作失败事件
func (e *EscrowLogic) emitOpFailed(op *model.LedgerOpModel, result *ledger.OpResult) {
	e.events.Emit(model.EventLedgerOpFailed, op.ProjectId, op.Id, map[string]interface{}{
		"kind":  op.Kind,
		"error": result.Err,
	})
}

// markOpResolved 将链上操作记录推进到终态
func markOpResolved(tx *gorm.DB, op *model.LedgerOpModel, status model.LedgerOpStatus, errMsg string, now time.Time) error {
	updates := map[string]interface{}{
		"status":      status,
		"resolved_at": &now,
	}
	if errMsg != "" {
		updates["failure_error"] = errMsg
	}
	if err := tx.Model(&model.LedgerOpModel{}).Where("id = ?", op.Id).Updates(updates).Error; err != nil {
		return fmt.Errorf("更新链上操作状态失败: %w", err)
	}
	return nil
}

// failureStatus 超时由轮询策略预先标记，其余失败为链上失败
func failureStatus(op *model.LedgerOpModel) model.LedgerOpStatus {
	if op.Status == model.LedgerOpStatusTimeout {
		return model.LedgerOpStatusTimeout
	}
	return model.LedgerOpStatusFailed
}

// releaseTypeCode 资金释放方式的链上编码
func releaseTypeCode(t model.ReleaseType) uint8 {
	if t == model.ReleaseTypeAutomatic {
		return 1
	}
	return 0
}

// disputeModeCode 争议解决方式的链上编码
func disputeModeCode(d model.DisputeResolution) uint8 {
	switch d {
	case model.DisputeResolutionMultisig:
		return 1
	case model.DisputeResolutionDAO:
		return 2
	default:
		return 0
	}
}
