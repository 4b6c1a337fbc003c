package task

import (
	"time"

	"github.com/devoffus/TrustLink/internal/config"
	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/devoffus/TrustLink/internal/model"
	"github.com/go-co-op/gocron/v2"
)

// InvitationExpiryJob 邀请过期通知任务。
// 过期是派生条件不落库，这里只对新过期的邀请补发领域事件。
type InvitationExpiryJob struct {
	invitations *logic.InvitationLogic
	events      *logic.EventLogic
	config      *config.Config

	notified map[string]struct{} // 本进程内已通知的邀请
}

// NewInvitationExpiryJob 创建邀请过期任务
func NewInvitationExpiryJob(invitations *logic.InvitationLogic, events *logic.EventLogic, cfg *config.Config) *InvitationExpiryJob {
	return &InvitationExpiryJob{
		invitations: invitations,
		events:      events,
		config:      cfg,
		notified:    make(map[string]struct{}),
	}
}

// GetName 获取任务名称
func (j *InvitationExpiryJob) GetName() string {
	return "invitation_expiry_notifier"
}

// GetSchedule 获取调度配置
func (j *InvitationExpiryJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.Interval) * time.Second)
}

// Execute 执行任务
func (j *InvitationExpiryJob) Execute() {
	expired, err := j.invitations.ExpiredPending(time.Now(), 200)
	if err != nil {
		logger.Error("Failed to fetch expired invitations: %v", err)
		return
	}

	count := 0
	for _, inv := range expired {
		if _, ok := j.notified[inv.Id]; ok {
			continue
		}
		j.events.Emit(model.EventInvitationExpired, inv.ProjectId, inv.Id, map[string]interface{}{
			"email":      inv.Email,
			"expires_at": inv.ExpiresAt,
		})
		j.notified[inv.Id] = struct{}{}
		count++
	}

	if count > 0 {
		logger.Info("Invitation expiry task completed. Notified %d invitations", count)
	}
}
