package logic

import (
	"context"
	"testing"
	"time"

	"github.com/devoffus/TrustLink/internal/model"
)

func TestOpenDisputeGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 未激活的项目不能开争议
	draft := env.createProject(t, 1000, []int{100})
	_, err := env.disputes.OpenDispute(ctx, draft.Id, "交付不符", testClient)
	assertErrCode(t, err, CodeDisputeActive)

	project := env.activateProject(t, 1000, []int{100})

	// 仅项目双方可发起
	_, err = env.disputes.OpenDispute(ctx, project.Id, "交付不符", testStranger)
	assertErrCode(t, err, CodeNotAuthorized)

	// 原因必填
	_, err = env.disputes.OpenDispute(ctx, project.Id, "", testClient)
	assertErrCode(t, err, CodeInvalidInput)

	if _, err := env.disputes.OpenDispute(ctx, project.Id, "交付不符", testClient); err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}

	// 同一项目不允许并行争议
	_, err = env.disputes.OpenDispute(ctx, project.Id, "再次争议", testFreelancer)
	assertErrCode(t, err, CodeDisputeActive)
}

func TestDisputeCopiesResolutionMethod(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{100})

	dispute, err := env.disputes.OpenDispute(context.Background(), project.Id, "交付不符", testFreelancer)
	if err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}

	// 解决方式在开启时拷贝，此后项目设置变化不影响本轮争议
	if dispute.ResolutionMethod != model.DisputeResolutionArbitration {
		t.Fatalf("expected arbitration copied from project, got %s", dispute.ResolutionMethod)
	}

	env.db.Model(&model.ProjectModel{}).Where("id = ?", project.Id).
		Update("dispute_resolution", model.DisputeResolutionDAO)

	reloaded, _ := env.disputes.ActiveDispute(project.Id)
	if reloaded.ResolutionMethod != model.DisputeResolutionArbitration {
		t.Fatalf("resolution method must be immutable, got %s", reloaded.ResolutionMethod)
	}
}

func TestDisputeFreezesVerification(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{100})
	submission := env.submitMilestone(t, project.Id, 0)

	if _, err := env.disputes.OpenDispute(context.Background(), project.Id, "交付不符", testClient); err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}

	// 争议期间验收被冻结
	_, err := env.escrows.VerifyMilestone(context.Background(), project.Id, submission.Id, testClient)
	assertErrCode(t, err, CodeDisputeActive)

	// 提交不受冻结影响：驳回后自由职业者仍可重新提交
	if err := env.escrows.RejectMilestone(project.Id, submission.Id, "先解决争议", testClient); err != nil {
		t.Fatalf("reject during dispute failed: %v", err)
	}
	if _, err := env.escrows.SubmitMilestone(context.Background(), project.Id, 0,
		"修订版", []model.Evidence{linkEvidence()}, testFreelancer); err != nil {
		t.Fatalf("submit during dispute failed: %v", err)
	}
}

func TestResolveDisputeOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// resumed恢复项目
	p1 := env.activateProject(t, 1000, []int{100})
	if _, err := env.disputes.OpenDispute(ctx, p1.Id, "交付不符", testClient); err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}
	if err := env.disputes.ResolveDispute(p1.Id, model.DisputeOutcomeResumed); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	reloaded, _ := env.projects.GetProject(p1.Id)
	if reloaded.Status != model.ProjectStatusActive {
		t.Fatalf("expected active after resumed, got %s", reloaded.Status)
	}

	// cancelled取消项目
	p2 := env.activateProject(t, 1000, []int{100})
	if _, err := env.disputes.OpenDispute(ctx, p2.Id, "交付不符", testClient); err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}
	if err := env.disputes.ResolveDispute(p2.Id, model.DisputeOutcomeCancelled); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	reloaded, _ = env.projects.GetProject(p2.Id)
	if reloaded.Status != model.ProjectStatusCancelled {
		t.Fatalf("expected cancelled, got %s", reloaded.Status)
	}

	// 没有争议时解决报错
	err := env.disputes.ResolveDispute(p1.Id, model.DisputeOutcomeResumed)
	assertErrCode(t, err, CodeDisputeNotOpen)

	// 未知裁决结果
	err = env.disputes.ResolveDispute(p1.Id, model.DisputeOutcome("split"))
	assertErrCode(t, err, CodeInvalidInput)
}

func TestTimelockBoundary(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{100})
	submission := env.submitMilestone(t, project.Id, 0)

	if _, err := env.disputes.OpenDispute(context.Background(), project.Id, "交付不符", testClient); err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}
	if err := env.disputes.ResolveDispute(project.Id, model.DisputeOutcomeResumed); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	dispute, _ := env.disputes.GetDisputes(project.Id)
	resolvedAt := *dispute[0].ResolvedAt
	boundary := resolvedAt.Add(time.Duration(project.TimelockDays) * 24 * time.Hour)

	// 窗口内冻结
	allowed, err := env.disputes.IsReleaseAllowed(project.Id, boundary.Add(-time.Second))
	if err != nil {
		t.Fatalf("IsReleaseAllowed failed: %v", err)
	}
	if allowed {
		t.Fatalf("release must be frozen inside timelock window")
	}

	// 恰好到达边界时解冻
	allowed, err = env.disputes.IsReleaseAllowed(project.Id, boundary)
	if err != nil {
		t.Fatalf("IsReleaseAllowed failed: %v", err)
	}
	if !allowed {
		t.Fatalf("release must be allowed at timelock boundary")
	}

	// 时间锁窗口内验收仍被拒
	_, err = env.escrows.VerifyMilestone(context.Background(), project.Id, submission.Id, testClient)
	assertErrCode(t, err, CodeDisputeActive)
}

func TestReconcileOpenDisputeFailure(t *testing.T) {
	env := newTestEnv(t)
	project := env.activateProject(t, 1000, []int{100})

	dispute, err := env.disputes.OpenDispute(context.Background(), project.Id, "交付不符", testClient)
	if err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}

	env.gw.Fail(env.gw.LastIssued(), "reverted")
	env.reconcileLast(t)

	// 链上失败回滚：争议记录删除，项目恢复进行中
	active, _ := env.disputes.ActiveDispute(project.Id)
	if active != nil {
		t.Fatalf("expected dispute rolled back, found %d", dispute.Id)
	}

	reloaded, _ := env.projects.GetProject(project.Id)
	if reloaded.Status != model.ProjectStatusActive {
		t.Fatalf("expected project restored to active, got %s", reloaded.Status)
	}
}
