package model

import (
	"time"
)

// ChallengeModel 登录挑战（SIWE消息），nonce一次性使用
type ChallengeModel struct {
	Nonce     string    `json:"nonce" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Address        string    `json:"address" gorm:"not null;index"`
	ChainId        int64     `json:"chain_id" gorm:"not null"`
	Message        string    `json:"message" gorm:"type:text;not null"` // 规范化的待签名消息
	IssuedAt       time.Time `json:"issued_at" gorm:"not null"`
	ExpirationTime time.Time `json:"expiration_time" gorm:"not null"`
	Consumed       bool      `json:"consumed" gorm:"default:false"` // 防重放标记
}

// SessionModel 认证会话
type SessionModel struct {
	Id        string    `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Address string `json:"address" gorm:"not null;index"`
	ChainId int64  `json:"chain_id" gorm:"not null"`

	// 建立会话的挑战与签名
	Message   string `json:"message" gorm:"type:text;not null"`
	Signature string `json:"signature" gorm:"not null"`

	// 有效期 [issued_at, expiration_time)
	IssuedAt       time.Time `json:"issued_at" gorm:"not null"`
	ExpirationTime time.Time `json:"expiration_time" gorm:"not null"`

	Revoked bool `json:"revoked" gorm:"default:false"`
}

// IsValid 会话当前是否有效
func (s *SessionModel) IsValid(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpirationTime)
}

// TableName 自定义表名
func (ChallengeModel) TableName() string {
	return "auth_challenge"
}

// TableName 自定义表名
func (SessionModel) TableName() string {
	return "auth_session"
}
