package model

import (
	"encoding/json"
	"errors"
	"time"
)

// MilestoneSubmissionModel 里程碑交付提交
type MilestoneSubmissionModel struct {
	Id        string    `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId      int64  `json:"project_id" gorm:"not null;index"`
	MilestoneIndex int    `json:"milestone_index" gorm:"not null"`
	Description    string `json:"description" gorm:"type:text;not null"`

	// 交付证据与评论（JSON文本）
	Evidence string `json:"evidence" gorm:"type:text;not null"`
	Comments string `json:"comments" gorm:"type:text"`

	// 提交信息
	SubmittedBy string    `json:"submitted_by" gorm:"not null"`
	SubmittedAt time.Time `json:"submitted_at" gorm:"not null"`

	// 状态镜像所属里程碑
	Status MilestoneStatus `json:"status" gorm:"default:'pending_verification'"`

	// 验收信息
	VerifiedAt *time.Time `json:"verified_at"`
	VerifiedBy string     `json:"verified_by"`

	// 驳回信息
	RejectedAt      *time.Time `json:"rejected_at"`
	RejectedBy      string     `json:"rejected_by"`
	RejectionReason string     `json:"rejection_reason"`

	// 区块链信息
	TransactionHash string `json:"transaction_hash"`

	// 本次里程碑释放金额（验收确认后填充）
	ReleaseAmount int64 `json:"release_amount"`
}

// EvidenceKind 证据类型
type EvidenceKind string

const (
	EvidenceKindLink EvidenceKind = "link" // 外部链接
	EvidenceKindFile EvidenceKind = "file" // 已上传文件
)

// Evidence 交付证据（link/file二选一的标签联合）
type Evidence struct {
	Kind        EvidenceKind `json:"kind"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Name        string       `json:"name,omitempty"`
	StorageRef  string       `json:"storage_ref,omitempty"`
	Size        int64        `json:"size,omitempty"`
	MimeType    string       `json:"mime_type,omitempty"`
}

// Validate 按证据类型校验必填字段
func (e Evidence) Validate() error {
	switch e.Kind {
	case EvidenceKindLink:
		if e.URL == "" {
			return errors.New("链接证据缺少url")
		}
		return nil
	case EvidenceKindFile:
		if e.Name == "" || e.StorageRef == "" {
			return errors.New("文件证据缺少name或storage_ref")
		}
		return nil
	default:
		return errors.New("未知的证据类型: " + string(e.Kind))
	}
}

// Comment 提交评论（追加写入）
type Comment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// EncodeEvidence 序列化证据列表
func EncodeEvidence(evidence []Evidence) (string, error) {
	data, err := json.Marshal(evidence)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeEvidence 反序列化证据列表
func DecodeEvidence(raw string) ([]Evidence, error) {
	if raw == "" {
		return nil, nil
	}
	var evidence []Evidence
	if err := json.Unmarshal([]byte(raw), &evidence); err != nil {
		return nil, err
	}
	return evidence, nil
}

// EncodeComments 序列化评论列表
func EncodeComments(comments []Comment) (string, error) {
	data, err := json.Marshal(comments)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeComments 反序列化评论列表
func DecodeComments(raw string) ([]Comment, error) {
	if raw == "" {
		return nil, nil
	}
	var comments []Comment
	if err := json.Unmarshal([]byte(raw), &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// TableName 自定义表名
func (MilestoneSubmissionModel) TableName() string {
	return "milestone_submission"
}
