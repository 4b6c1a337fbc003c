package model

import (
	"time"
)

// InvitationModel 客户邀请
type InvitationModel struct {
	Id        string    `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId    int64  `json:"project_id" gorm:"not null;index"`
	ProjectTitle string `json:"project_title" gorm:"not null"` // 冗余缓存，避免读邀请时联表

	// 受邀方
	Email          string `json:"email" gorm:"not null"`
	InviteeAddress string `json:"invitee_address"`

	// 邀请内容
	Message string `json:"message" gorm:"type:text;not null"`

	// 发起方
	IssuerAddress string `json:"issuer_address" gorm:"not null"`

	// 状态与有效期
	Status    InvitationStatus `json:"status" gorm:"default:'pending'"`
	ExpiresAt time.Time        `json:"expires_at" gorm:"not null"`

	// 终态时间戳
	AcceptedAt  *time.Time `json:"accepted_at"`
	AcceptedBy  string     `json:"accepted_by"`
	DeclinedAt  *time.Time `json:"declined_at"`
	DeclineNote string     `json:"decline_note"`
	CancelledAt *time.Time `json:"cancelled_at"`
}

// InvitationStatus 邀请状态
type InvitationStatus string

const (
	InvitationStatusPending   InvitationStatus = "pending"   // 待处理
	InvitationStatusAccepted  InvitationStatus = "accepted"  // 已接受
	InvitationStatusDeclined  InvitationStatus = "declined"  // 已拒绝
	InvitationStatusCancelled InvitationStatus = "cancelled" // 已取消
)

// IsExpired 过期是派生条件，不落库：超期的pending邀请禁止接受/拒绝，但仍可被取消
func (i *InvitationModel) IsExpired(now time.Time) bool {
	return i.Status == InvitationStatusPending && now.After(i.ExpiresAt)
}

// TableName 自定义表名
func (InvitationModel) TableName() string {
	return "invitation"
}
