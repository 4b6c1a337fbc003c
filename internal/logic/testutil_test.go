package logic

import (
	"context"
	"testing"
	"time"

	"github.com/devoffus/TrustLink/internal/config"
	"github.com/devoffus/TrustLink/internal/ledger"
	"github.com/devoffus/TrustLink/internal/model"
	"github.com/devoffus/TrustLink/internal/repository"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testClient     = "0x1111111111111111111111111111111111111111"
	testFreelancer = "0x2222222222222222222222222222222222222222"
	testStranger   = "0x3333333333333333333333333333333333333333"
)

// testEnv 测试环境：内存数据库 + 内存网关
type testEnv struct {
	db          *gorm.DB
	gw          *ledger.MockGateway
	events      *EventLogic
	projects    *ProjectLogic
	disputes    *DisputeLogic
	escrows     *EscrowLogic
	invitations *InvitationLogic
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	gw := ledger.NewMockGateway()
	locks := NewProjectLocks()
	events := NewEventLogic(db)
	disputes := NewDisputeLogic(db, gw, events, locks)

	return &testEnv{
		db:          db,
		gw:          gw,
		events:      events,
		projects:    NewProjectLogic(db),
		disputes:    disputes,
		escrows:     NewEscrowLogic(db, gw, events, disputes, locks),
		invitations: NewInvitationLogic(db, events, config.InvitationConfig{ValidityDays: 7}),
	}
}

// createProject 创建测试项目草稿
func (e *testEnv) createProject(t *testing.T, budget int64, percentages []int) *model.ProjectModel {
	t.Helper()

	project := &model.ProjectModel{
		Title:             "网站重构",
		Description:       "前后端整体重构",
		ClientAddress:     testClient,
		FreelancerAddress: testFreelancer,
		Budget:            budget,
		Deadline:          time.Now().Add(90 * 24 * time.Hour),
		ReleaseType:       model.ReleaseTypeManual,
		DisputeResolution: model.DisputeResolutionArbitration,
		TimelockDays:      7,
	}

	milestones := make([]model.MilestoneModel, len(percentages))
	for i, pct := range percentages {
		milestones[i] = model.MilestoneModel{
			Title:      "阶段交付",
			Percentage: pct,
		}
	}

	if err := e.projects.CreateProject(project, milestones); err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}
	return project
}

// activateProject 创建并激活项目，确认部署后项目进入进行中
func (e *testEnv) activateProject(t *testing.T, budget int64, percentages []int) *model.ProjectModel {
	t.Helper()

	project := e.createProject(t, budget, percentages)
	if _, err := e.escrows.Activate(context.Background(), project.Id); err != nil {
		t.Fatalf("failed to activate test project: %v", err)
	}

	e.gw.ConfirmWithEscrow(e.gw.LastIssued())
	e.reconcileLast(t)

	reloaded, err := e.projects.GetProject(project.Id)
	if err != nil {
		t.Fatalf("failed to reload project: %v", err)
	}
	if reloaded.Status != model.ProjectStatusActive {
		t.Fatalf("expected project active after escrow confirmation, got %s", reloaded.Status)
	}
	return reloaded
}

// reconcileLast 对账最近发出的链上操作（模拟确认轮询的一次分发）
func (e *testEnv) reconcileLast(t *testing.T) {
	t.Helper()
	e.reconcileTx(t, e.gw.LastIssued())
}

func (e *testEnv) reconcileTx(t *testing.T, txHash string) {
	t.Helper()

	var op model.LedgerOpModel
	if err := e.db.First(&op, "tx_hash = ?", txHash).Error; err != nil {
		t.Fatalf("failed to load op for tx %s: %v", txHash, err)
	}

	result, err := e.gw.OpStatus(context.Background(), txHash)
	if err != nil {
		t.Fatalf("failed to query op status: %v", err)
	}

	if op.Kind == model.LedgerOpOpenDispute {
		err = e.disputes.ReconcileOpenDispute(&op, result)
	} else {
		err = e.escrows.ReconcileOp(&op, result)
	}
	if err != nil {
		t.Fatalf("reconciliation failed: %v", err)
	}
}

// submitMilestone 提交里程碑并确认链上操作
func (e *testEnv) submitMilestone(t *testing.T, projectId int64, index int) *model.MilestoneSubmissionModel {
	t.Helper()

	submission, err := e.escrows.SubmitMilestone(context.Background(), projectId, index,
		"阶段成果", []model.Evidence{linkEvidence()}, testFreelancer)
	if err != nil {
		t.Fatalf("failed to submit milestone %d: %v", index, err)
	}

	e.gw.Confirm(e.gw.LastIssued())
	e.reconcileLast(t)
	return submission
}

// completeMilestone 提交并验收里程碑直至链上确认
func (e *testEnv) completeMilestone(t *testing.T, projectId int64, index int) *ReleaseReceipt {
	t.Helper()

	submission := e.submitMilestone(t, projectId, index)
	receipt, err := e.escrows.VerifyMilestone(context.Background(), projectId, submission.Id, testClient)
	if err != nil {
		t.Fatalf("failed to verify milestone %d: %v", index, err)
	}

	e.gw.Confirm(e.gw.LastIssued())
	e.reconcileLast(t)
	return receipt
}

func linkEvidence() model.Evidence {
	return model.Evidence{
		Kind:        model.EvidenceKindLink,
		URL:         "https://github.com/devoffus/site/pull/42",
		Description: "代码评审链接",
	}
}

// assertErrCode 断言业务错误码
func assertErrCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	if got := ErrCode(err); got != code {
		t.Fatalf("expected error code %s, got %s (%v)", code, got, err)
	}
}
