package model

import (
	"time"
)

// DomainEventModel 领域事件记录（至少一次投递，消费方按事件ID去重）
type DomainEventModel struct {
	Id        string    `json:"id" gorm:"primaryKey"` // 事件ID（uuid），消费方去重依据
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EventType string `json:"event_type" gorm:"not null;index"`
	ProjectId int64  `json:"project_id" gorm:"index"`
	EntityId  string `json:"entity_id"` // 关联实体ID（提交、邀请、争议等）
	Data      string `json:"data" gorm:"type:text"`
	Processed bool   `json:"processed" gorm:"default:false"`
}

// 领域事件类型
const (
	EventEscrowActivated     = "EscrowActivated"
	EventMilestoneSubmitted  = "MilestoneSubmitted"
	EventMilestoneVerified   = "MilestoneVerified"
	EventMilestoneRejected   = "MilestoneRejected"
	EventDisputeOpened       = "DisputeOpened"
	EventDisputeResolved     = "DisputeResolved"
	EventInvitationSent      = "InvitationSent"
	EventInvitationAccepted  = "InvitationAccepted"
	EventInvitationDeclined  = "InvitationDeclined"
	EventInvitationCancelled = "InvitationCancelled"
	EventInvitationExpired   = "InvitationExpired"
	EventLedgerOpFailed      = "LedgerOpFailed"
	EventProjectCompleted    = "ProjectCompleted"
)

// TableName 自定义表名
func (DomainEventModel) TableName() string {
	return "domain_event"
}
