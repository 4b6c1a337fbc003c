package logic

import (
	"testing"
	"time"

	"github.com/devoffus/TrustLink/internal/model"
)

func TestCreateInvitationValidation(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t, 1000, []int{100})

	// 邮箱格式
	_, err := env.invitations.CreateInvitation(project.Id, "not-an-email", "",
		"诚邀您参与本项目开发", testClient)
	assertErrCode(t, err, CodeInvalidInput)

	// 消息长度
	_, err = env.invitations.CreateInvitation(project.Id, "dev@example.com", "", "太短", testClient)
	assertErrCode(t, err, CodeInvalidInput)

	// 受邀地址格式（可选字段，填了就要合法）
	_, err = env.invitations.CreateInvitation(project.Id, "dev@example.com", "0x123",
		"诚邀您参与本项目开发", testClient)
	assertErrCode(t, err, CodeInvalidInput)

	// 仅客户可签发
	_, err = env.invitations.CreateInvitation(project.Id, "dev@example.com", "",
		"诚邀您参与本项目开发", testStranger)
	assertErrCode(t, err, CodeNotAuthorized)

	inv, err := env.invitations.CreateInvitation(project.Id, "dev@example.com", "",
		"诚邀您参与本项目开发", testClient)
	if err != nil {
		t.Fatalf("create invitation failed: %v", err)
	}
	if inv.ProjectTitle != project.Title {
		t.Fatalf("expected project title cached on invitation")
	}

	// 有效期为7天
	wantExpiry := time.Now().AddDate(0, 0, 7)
	if inv.ExpiresAt.Sub(wantExpiry) > time.Minute || wantExpiry.Sub(inv.ExpiresAt) > time.Minute {
		t.Fatalf("expected expiry ~7 days out, got %s", inv.ExpiresAt)
	}
}

func TestAcceptInvitation(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t, 1000, []int{100})

	inv, _ := env.invitations.CreateInvitation(project.Id, "dev@example.com", "",
		"诚邀您参与本项目开发", testClient)

	accepted, err := env.invitations.AcceptInvitation(inv.Id, testFreelancer)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if accepted.Status != model.InvitationStatusAccepted || accepted.AcceptedBy != testFreelancer {
		t.Fatalf("expected accepted by %s, got %+v", testFreelancer, accepted)
	}

	// 终态后不可再接受/拒绝/取消
	_, err = env.invitations.AcceptInvitation(inv.Id, testFreelancer)
	assertErrCode(t, err, CodeNotPending)
	err = env.invitations.DeclineInvitation(inv.Id, "")
	assertErrCode(t, err, CodeNotPending)
	err = env.invitations.CancelInvitation(inv.Id, testClient)
	assertErrCode(t, err, CodeNotPending)
}

func TestAddressBoundInvitation(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t, 1000, []int{100})

	inv, _ := env.invitations.CreateInvitation(project.Id, "dev@example.com", testFreelancer,
		"诚邀您参与本项目开发", testClient)

	// 指定受邀地址时其他地址不能接受
	_, err := env.invitations.AcceptInvitation(inv.Id, testStranger)
	assertErrCode(t, err, CodeNotAuthorized)

	if _, err := env.invitations.AcceptInvitation(inv.Id, testFreelancer); err != nil {
		t.Fatalf("accept by designated address failed: %v", err)
	}
}

func TestExpiredInvitationGating(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t, 1000, []int{100})

	inv, _ := env.invitations.CreateInvitation(project.Id, "dev@example.com", "",
		"诚邀您参与本项目开发", testClient)

	env.db.Model(&model.InvitationModel{}).Where("id = ?", inv.Id).
		Update("expires_at", time.Now().Add(-time.Hour))

	// 过期后不能接受或拒绝
	_, err := env.invitations.AcceptInvitation(inv.Id, testFreelancer)
	assertErrCode(t, err, CodeExpired)
	err = env.invitations.DeclineInvitation(inv.Id, "来晚了")
	assertErrCode(t, err, CodeExpired)

	// 但发起方仍可取消
	if err := env.invitations.CancelInvitation(inv.Id, testClient); err != nil {
		t.Fatalf("cancel of expired invitation failed: %v", err)
	}
}

func TestDeclineInvitation(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t, 1000, []int{100})

	inv, _ := env.invitations.CreateInvitation(project.Id, "dev@example.com", "",
		"诚邀您参与本项目开发", testClient)

	if err := env.invitations.DeclineInvitation(inv.Id, "档期冲突"); err != nil {
		t.Fatalf("decline failed: %v", err)
	}

	reloaded, _ := env.invitations.GetInvitation(inv.Id)
	if reloaded.Status != model.InvitationStatusDeclined || reloaded.DeclineNote != "档期冲突" {
		t.Fatalf("expected declined with note, got %+v", reloaded)
	}
}

func TestCancelInvitationIssuerOnly(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t, 1000, []int{100})

	inv, _ := env.invitations.CreateInvitation(project.Id, "dev@example.com", "",
		"诚邀您参与本项目开发", testClient)

	err := env.invitations.CancelInvitation(inv.Id, testFreelancer)
	assertErrCode(t, err, CodeNotAuthorized)

	if err := env.invitations.CancelInvitation(inv.Id, testClient); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
}

func TestResendExtendsExpiry(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t, 1000, []int{100})

	inv, _ := env.invitations.CreateInvitation(project.Id, "dev@example.com", "",
		"诚邀您参与本项目开发", testClient)

	// 让邀请先过期，重发后恢复可接受
	env.db.Model(&model.InvitationModel{}).Where("id = ?", inv.Id).
		Update("expires_at", time.Now().Add(-time.Hour))

	resent, err := env.invitations.ResendInvitation(inv.Id, testClient)
	if err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if !resent.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected expiry extended into the future")
	}

	if _, err := env.invitations.AcceptInvitation(inv.Id, testFreelancer); err != nil {
		t.Fatalf("accept after resend failed: %v", err)
	}
}

func TestExpiredPendingListing(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t, 1000, []int{100})

	expired, _ := env.invitations.CreateInvitation(project.Id, "a@example.com", "",
		"诚邀您参与本项目开发", testClient)
	env.db.Model(&model.InvitationModel{}).Where("id = ?", expired.Id).
		Update("expires_at", time.Now().Add(-time.Hour))

	if _, err := env.invitations.CreateInvitation(project.Id, "b@example.com", "",
		"诚邀您参与本项目开发", testClient); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	list, err := env.invitations.ExpiredPending(time.Now(), 10)
	if err != nil {
		t.Fatalf("ExpiredPending failed: %v", err)
	}
	if len(list) != 1 || list[0].Id != expired.Id {
		t.Fatalf("expected only the expired invitation, got %d", len(list))
	}
}
