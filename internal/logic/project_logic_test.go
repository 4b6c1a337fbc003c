package logic

import (
	"testing"
	"time"

	"github.com/devoffus/TrustLink/internal/model"
)

func testDraft() (*model.ProjectModel, []model.MilestoneModel) {
	project := &model.ProjectModel{
		Title:             "网站重构",
		ClientAddress:     testClient,
		FreelancerAddress: testFreelancer,
		Budget:            1000,
		Deadline:          time.Now().Add(30 * 24 * time.Hour),
		TimelockDays:      7,
	}
	milestones := []model.MilestoneModel{
		{Title: "设计稿", Percentage: 40},
		{Title: "开发", Percentage: 60},
	}
	return project, milestones
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("标题必填", func(t *testing.T) {
		project, milestones := testDraft()
		project.Title = ""
		assertErrCode(t, env.projects.CreateProject(project, milestones), CodeInvalidInput)
	})

	t.Run("预算必须为正", func(t *testing.T) {
		project, milestones := testDraft()
		project.Budget = 0
		assertErrCode(t, env.projects.CreateProject(project, milestones), CodeInvalidBudget)
	})

	t.Run("地址格式", func(t *testing.T) {
		project, milestones := testDraft()
		project.FreelancerAddress = "not-an-address"
		assertErrCode(t, env.projects.CreateProject(project, milestones), CodeInvalidInput)
	})

	t.Run("截止时间在未来", func(t *testing.T) {
		project, milestones := testDraft()
		project.Deadline = time.Now().Add(-time.Hour)
		assertErrCode(t, env.projects.CreateProject(project, milestones), CodeInvalidInput)
	})

	t.Run("时间锁范围", func(t *testing.T) {
		project, milestones := testDraft()
		project.TimelockDays = 45
		assertErrCode(t, env.projects.CreateProject(project, milestones), CodeInvalidInput)
	})

	t.Run("里程碑百分比范围", func(t *testing.T) {
		project, milestones := testDraft()
		milestones[0].Percentage = 120
		assertErrCode(t, env.projects.CreateProject(project, milestones), CodeInvalidMilestoneSchedule)
	})
}

func TestCreateProjectAssignsOrder(t *testing.T) {
	env := newTestEnv(t)

	project, milestones := testDraft()
	if err := env.projects.CreateProject(project, milestones); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if project.Status != model.ProjectStatusPending {
		t.Fatalf("expected draft pending, got %s", project.Status)
	}

	stored, err := env.projects.GetProjectMilestones(project.Id)
	if err != nil {
		t.Fatalf("load milestones failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 milestones, got %d", len(stored))
	}
	for i, m := range stored {
		if m.Idx != i {
			t.Fatalf("expected milestone %d at idx %d, got %d", i, i, m.Idx)
		}
	}
}

// 草稿阶段不校验百分比总和，总和校验推迟到激活
func TestCreateProjectAllowsPartialSchedule(t *testing.T) {
	env := newTestEnv(t)

	project, milestones := testDraft()
	milestones[1].Percentage = 30
	if err := env.projects.CreateProject(project, milestones); err != nil {
		t.Fatalf("draft with partial schedule must be allowed: %v", err)
	}
}

func TestGetProjectsFilter(t *testing.T) {
	env := newTestEnv(t)

	env.createProject(t, 1000, []int{100})
	env.createProject(t, 2000, []int{50, 50})

	projects, total, err := env.projects.GetProjects(testClient, "", 1, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(projects) != 2 {
		t.Fatalf("expected 2 projects for client, got %d", total)
	}

	_, total, _ = env.projects.GetProjects(testStranger, "", 1, 10)
	if total != 0 {
		t.Fatalf("expected no projects for stranger, got %d", total)
	}

	_, total, _ = env.projects.GetProjects("", string(model.ProjectStatusPending), 1, 10)
	if total != 2 {
		t.Fatalf("expected 2 pending projects, got %d", total)
	}
}
