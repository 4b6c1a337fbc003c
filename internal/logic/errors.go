package logic

import (
	"errors"
	"fmt"
)

// ErrorKind 错误类别
type ErrorKind string

const (
	ErrKindValidation    ErrorKind = "validation"     // 输入不合法，同步返回，不触链
	ErrKindAuthorization ErrorKind = "authorization"  // 操作者身份不符
	ErrKindStateConflict ErrorKind = "state_conflict" // 当前状态下非法的状态流转
	ErrKindLedger        ErrorKind = "ledger"         // 链上操作失败
	ErrKindTimeout       ErrorKind = "timeout"        // 链上操作超时未确认
)

// 错误码
const (
	CodeInvalidMilestoneSchedule = "InvalidMilestoneSchedule"
	CodeInvalidBudget            = "InvalidBudget"
	CodeMilestoneNotActive       = "MilestoneNotActive"
	CodeEmptyEvidence            = "EmptyEvidence"
	CodeDuplicateSubmission      = "DuplicateSubmission"
	CodeNotPendingVerification   = "NotPendingVerification"
	CodeNotAuthorized            = "NotAuthorized"
	CodeDisputeActive            = "DisputeActive"
	CodeDisputeNotOpen           = "DisputeNotOpen"
	CodeSignatureMismatch        = "SignatureMismatch"
	CodeNonceReplayed            = "NonceReplayed"
	CodeChallengeExpired         = "ChallengeExpired"
	CodeSessionInvalid           = "SessionInvalid"
	CodeNotPending               = "NotPending"
	CodeExpired                  = "Expired"
	CodeNotFound                 = "NotFound"
	CodeInvalidInput             = "InvalidInput"
	CodeLedgerFailed             = "LedgerFailed"
)

// AppError 结构化业务错误：类别 + 错误码 + 描述 + 关联实体
type AppError struct {
	Kind     ErrorKind `json:"kind"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	EntityId string    `json:"entity_id,omitempty"`
}

func (e *AppError) Error() string {
	if e.EntityId != "" {
		return fmt.Sprintf("[%s/%s] %s (entity: %s)", e.Kind, e.Code, e.Message, e.EntityId)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Kind, e.Code, e.Message)
}

// NewValidationError 创建输入校验错误
func NewValidationError(code, entityId, format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrKindValidation, Code: code, EntityId: entityId, Message: fmt.Sprintf(format, args...)}
}

// NewAuthorizationError 创建授权错误
func NewAuthorizationError(code, entityId, format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrKindAuthorization, Code: code, EntityId: entityId, Message: fmt.Sprintf(format, args...)}
}

// NewStateConflictError 创建状态冲突错误
func NewStateConflictError(code, entityId, format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrKindStateConflict, Code: code, EntityId: entityId, Message: fmt.Sprintf(format, args...)}
}

// NewLedgerError 创建链上操作错误
func NewLedgerError(entityId, format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrKindLedger, Code: CodeLedgerFailed, EntityId: entityId, Message: fmt.Sprintf(format, args...)}
}

// ErrCode 提取错误码，非业务错误返回空串
func ErrCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ErrKind 提取错误类别，非业务错误返回空串
func ErrKindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
