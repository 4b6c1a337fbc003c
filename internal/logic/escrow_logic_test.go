package logic

import (
	"context"
	"testing"

	"github.com/devoffus/TrustLink/internal/ledger"
	"github.com/devoffus/TrustLink/internal/model"
)

func TestReleaseAmount(t *testing.T) {
	tests := []struct {
		name        string
		budget      int64
		percentages []int
		want        []int64
	}{
		{"整除", 1000, []int{40, 35, 25}, []int64{400, 350, 250}},
		{"余数归最后一项", 100, []int{33, 33, 34}, []int64{33, 33, 34}},
		{"奇数预算", 1001, []int{50, 50}, []int64{500, 501}},
		{"单一里程碑", 999, []int{100}, []int64{999}},
		{"小预算大份数", 7, []int{30, 30, 40}, []int64{2, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sum int64
			for i, want := range tt.want {
				got := ReleaseAmount(tt.budget, tt.percentages, i)
				if got != want {
					t.Errorf("milestone %d: got %d, want %d", i, got, want)
				}
				sum += got
			}
			// 各里程碑金额之和必须恰好等于预算
			if sum != tt.budget {
				t.Errorf("amounts sum to %d, want budget %d", sum, tt.budget)
			}
		})
	}
}

func TestActivateRequiresFullSchedule(t *testing.T) {
	env := newTestEnv(t)

	project := env.createProject(t, 1000, []int{40, 35})
	_, err := env.escrows.Activate(context.Background(), project.Id)
	assertErrCode(t, err, CodeInvalidMilestoneSchedule)

	// 失败激活不应改变项目状态
	reloaded, _ := env.projects.GetProject(project.Id)
	if reloaded.Status != model.ProjectStatusPending {
		t.Fatalf("expected project still pending, got %s", reloaded.Status)
	}
}

func TestActivateRejectsOverfullSchedule(t *testing.T) {
	env := newTestEnv(t)

	project := env.createProject(t, 1000, []int{60, 50})
	_, err := env.escrows.Activate(context.Background(), project.Id)
	assertErrCode(t, err, CodeInvalidMilestoneSchedule)
}

func TestActivateConfirmFlow(t *testing.T) {
	env := newTestEnv(t)

	project := env.createProject(t, 1000, []int{40, 35, 25})
	op, err := env.escrows.Activate(context.Background(), project.Id)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	// 确认前项目处于上链中
	reloaded, _ := env.projects.GetProject(project.Id)
	if reloaded.Status != model.ProjectStatusDeploying {
		t.Fatalf("expected deploying before confirmation, got %s", reloaded.Status)
	}

	escrowAddr := env.gw.ConfirmWithEscrow(op.TxHash)
	env.reconcileTx(t, op.TxHash)

	reloaded, _ = env.projects.GetProject(project.Id)
	if reloaded.Status != model.ProjectStatusActive {
		t.Fatalf("expected active after confirmation, got %s", reloaded.Status)
	}
	if reloaded.EscrowAddress != escrowAddr {
		t.Fatalf("expected escrow address %s, got %s", escrowAddr, reloaded.EscrowAddress)
	}
	if reloaded.TransactionHash != op.TxHash {
		t.Fatalf("expected tx hash recorded on project")
	}
}

func TestActivateFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)

	project := env.createProject(t, 1000, []int{100})
	op, err := env.escrows.Activate(context.Background(), project.Id)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	env.gw.Fail(op.TxHash, "out of gas")
	env.reconcileTx(t, op.TxHash)

	// 部署失败项目退回待激活，可重新激活
	reloaded, _ := env.projects.GetProject(project.Id)
	if reloaded.Status != model.ProjectStatusPending {
		t.Fatalf("expected pending after failed deployment, got %s", reloaded.Status)
	}

	var failedOp model.LedgerOpModel
	env.db.First(&failedOp, "id = ?", op.Id)
	if failedOp.Status != model.LedgerOpStatusFailed {
		t.Fatalf("expected op failed, got %s", failedOp.Status)
	}
	if failedOp.FailureError != "out of gas" {
		t.Fatalf("expected failure reason recorded, got %q", failedOp.FailureError)
	}

	if _, err := env.escrows.Activate(context.Background(), project.Id); err != nil {
		t.Fatalf("re-activation after failure should succeed: %v", err)
	}
}

func TestSubmitMilestoneGuards(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{40, 35, 25})
	ctx := context.Background()

	// 仅自由职业者可提交
	_, err := env.escrows.SubmitMilestone(ctx, project.Id, 0, "成果", []model.Evidence{linkEvidence()}, testClient)
	assertErrCode(t, err, CodeNotAuthorized)

	// 证据不能为空
	_, err = env.escrows.SubmitMilestone(ctx, project.Id, 0, "成果", nil, testFreelancer)
	assertErrCode(t, err, CodeEmptyEvidence)

	// 前序未完成的里程碑锁定
	_, err = env.escrows.SubmitMilestone(ctx, project.Id, 1, "成果", []model.Evidence{linkEvidence()}, testFreelancer)
	assertErrCode(t, err, CodeMilestoneNotActive)

	// 同一里程碑不允许并行提交
	if _, err := env.escrows.SubmitMilestone(ctx, project.Id, 0, "成果", []model.Evidence{linkEvidence()}, testFreelancer); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	_, err = env.escrows.SubmitMilestone(ctx, project.Id, 0, "再次提交", []model.Evidence{linkEvidence()}, testFreelancer)
	assertErrCode(t, err, CodeDuplicateSubmission)
}

func TestSubmitEvidenceValidation(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{100})

	// 链接证据缺url
	_, err := env.escrows.SubmitMilestone(context.Background(), project.Id, 0, "成果",
		[]model.Evidence{{Kind: model.EvidenceKindLink}}, testFreelancer)
	assertErrCode(t, err, CodeInvalidInput)

	// 文件证据缺storage_ref
	_, err = env.escrows.SubmitMilestone(context.Background(), project.Id, 0, "成果",
		[]model.Evidence{{Kind: model.EvidenceKindFile, Name: "report.pdf"}}, testFreelancer)
	assertErrCode(t, err, CodeInvalidInput)
}

func TestSubmitLedgerFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{100})

	submission, err := env.escrows.SubmitMilestone(context.Background(), project.Id, 0,
		"成果", []model.Evidence{linkEvidence()}, testFreelancer)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	env.gw.Fail(env.gw.LastIssued(), "reverted")
	env.reconcileLast(t)

	// 乐观创建的提交被系统驳回，保留审计记录
	reloaded, _ := env.escrows.GetSubmission(submission.Id)
	if reloaded.Status != model.MilestoneStatusRejected {
		t.Fatalf("expected submission rejected after ledger failure, got %s", reloaded.Status)
	}
	if reloaded.RejectedBy != "system" {
		t.Fatalf("expected system rejection, got %q", reloaded.RejectedBy)
	}

	// 里程碑回到可提交
	status, _ := env.escrows.MilestoneStatus(project.Id, 0)
	if status != model.MilestoneStatusActive {
		t.Fatalf("expected milestone active after rollback, got %s", status)
	}
}

func TestVerifyFlow(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{40, 35, 25})
	submission := env.submitMilestone(t, project.Id, 0)

	receipt, err := env.escrows.VerifyMilestone(context.Background(), project.Id, submission.Id, testClient)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if receipt.Amount != 400 {
		t.Fatalf("expected release amount 400, got %d", receipt.Amount)
	}

	// 链上确认前不落定为已完成
	reloaded, _ := env.escrows.GetSubmission(submission.Id)
	if reloaded.Status != model.MilestoneStatusPendingVerification {
		t.Fatalf("expected pending_verification before confirmation, got %s", reloaded.Status)
	}

	// 确认中禁止重复验收
	_, err = env.escrows.VerifyMilestone(context.Background(), project.Id, submission.Id, testClient)
	assertErrCode(t, err, CodeNotPendingVerification)

	env.gw.Confirm(env.gw.LastIssued())
	env.reconcileLast(t)

	reloaded, _ = env.escrows.GetSubmission(submission.Id)
	if reloaded.Status != model.MilestoneStatusCompleted {
		t.Fatalf("expected completed after confirmation, got %s", reloaded.Status)
	}
	if reloaded.ReleaseAmount != 400 {
		t.Fatalf("expected release amount 400 recorded, got %d", reloaded.ReleaseAmount)
	}
	if reloaded.VerifiedBy != testClient {
		t.Fatalf("expected verified by client, got %q", reloaded.VerifiedBy)
	}

	// 下一里程碑解锁
	status, _ := env.escrows.MilestoneStatus(project.Id, 1)
	if status != model.MilestoneStatusActive {
		t.Fatalf("expected milestone 1 unlocked, got %s", status)
	}
}

func TestVerifyOnlyByClient(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{100})
	submission := env.submitMilestone(t, project.Id, 0)

	_, err := env.escrows.VerifyMilestone(context.Background(), project.Id, submission.Id, testFreelancer)
	assertErrCode(t, err, CodeNotAuthorized)
}

func TestRejectAndResubmit(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{100})
	submission := env.submitMilestone(t, project.Id, 0)

	// 仅客户可驳回，且必须给出原因
	err := env.escrows.RejectMilestone(project.Id, submission.Id, "缺少测试报告", testFreelancer)
	assertErrCode(t, err, CodeNotAuthorized)
	err = env.escrows.RejectMilestone(project.Id, submission.Id, "", testClient)
	assertErrCode(t, err, CodeInvalidInput)

	if err := env.escrows.RejectMilestone(project.Id, submission.Id, "缺少测试报告", testClient); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	reloaded, _ := env.escrows.GetSubmission(submission.Id)
	if reloaded.Status != model.MilestoneStatusRejected {
		t.Fatalf("expected rejected, got %s", reloaded.Status)
	}
	if reloaded.RejectionReason != "缺少测试报告" {
		t.Fatalf("expected rejection reason recorded")
	}

	// 驳回后可立即重新提交，次数不限
	resubmitted := env.submitMilestone(t, project.Id, 0)
	if resubmitted.Id == submission.Id {
		t.Fatalf("resubmission should create a new record")
	}

	// 历史提交保留
	submissions, _ := env.escrows.GetSubmissions(project.Id)
	if len(submissions) != 2 {
		t.Fatalf("expected 2 submissions in history, got %d", len(submissions))
	}
}

func TestProjectCompletedAfterAllMilestones(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{60, 40})

	r0 := env.completeMilestone(t, project.Id, 0)
	if r0.Amount != 600 {
		t.Fatalf("expected first release 600, got %d", r0.Amount)
	}

	r1 := env.completeMilestone(t, project.Id, 1)
	if r1.Amount != 400 {
		t.Fatalf("expected final release 400, got %d", r1.Amount)
	}

	reloaded, _ := env.projects.GetProject(project.Id)
	if reloaded.Status != model.ProjectStatusCompleted {
		t.Fatalf("expected project completed, got %s", reloaded.Status)
	}
}

func TestOpTimeoutRollsBack(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t, 1000, []int{100})

	op, err := env.escrows.Activate(context.Background(), project.Id)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	// 模拟轮询判定超时：操作按失败回滚，终态标记为timeout
	var stored model.LedgerOpModel
	env.db.First(&stored, "id = ?", op.Id)
	stored.Status = model.LedgerOpStatusTimeout

	if err := env.escrows.ReconcileOp(&stored, timeoutResult(op.TxHash)); err != nil {
		t.Fatalf("timeout reconciliation failed: %v", err)
	}

	reloaded, _ := env.projects.GetProject(project.Id)
	if reloaded.Status != model.ProjectStatusPending {
		t.Fatalf("expected pending after timeout rollback, got %s", reloaded.Status)
	}

	env.db.First(&stored, "id = ?", op.Id)
	if stored.Status != model.LedgerOpStatusTimeout {
		t.Fatalf("expected op timeout status, got %s", stored.Status)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t, 1000, []int{100})

	op, err := env.escrows.Activate(context.Background(), project.Id)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	env.gw.ConfirmWithEscrow(op.TxHash)

	env.reconcileTx(t, op.TxHash)
	// 重放同一操作不应报错或改变状态
	env.reconcileTx(t, op.TxHash)

	reloaded, _ := env.projects.GetProject(project.Id)
	if reloaded.Status != model.ProjectStatusActive {
		t.Fatalf("expected active after replayed reconciliation, got %s", reloaded.Status)
	}
}

func TestAppendComment(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{100})
	submission := env.submitMilestone(t, project.Id, 0)

	if err := env.escrows.AppendComment(submission.Id, testClient, "请补充部署说明"); err != nil {
		t.Fatalf("append comment failed: %v", err)
	}

	reloaded, _ := env.escrows.GetSubmission(submission.Id)
	comments, err := model.DecodeComments(reloaded.Comments)
	if err != nil {
		t.Fatalf("decode comments failed: %v", err)
	}
	if len(comments) != 1 || comments[0].Author != testClient {
		t.Fatalf("expected one comment by client, got %+v", comments)
	}
}

func timeoutResult(txHash string) *ledger.OpResult {
	return &ledger.OpResult{
		State:  ledger.OpFailed,
		TxHash: txHash,
		Err:    "confirmation timeout",
	}
}
