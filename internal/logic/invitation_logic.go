package logic

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/devoffus/TrustLink/internal/config"
	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/devoffus/TrustLink/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// InvitationLogic 邀请业务逻辑。邀请签发后有固定有效期，
// 过期为派生条件：超期pending邀请禁止接受/拒绝，但发起方仍可取消。
type InvitationLogic struct {
	db     *gorm.DB
	events *EventLogic
	cfg    config.InvitationConfig
}

// NewInvitationLogic 创建邀请业务逻辑
func NewInvitationLogic(db *gorm.DB, events *EventLogic, cfg config.InvitationConfig) *InvitationLogic {
	return &InvitationLogic{db: db, events: events, cfg: cfg}
}

// CreateInvitation 为项目签发邀请
func (l *InvitationLogic) CreateInvitation(projectId int64, email, inviteeAddress, message, issuer string) (*model.InvitationModel, error) {
	if !emailPattern.MatchString(email) {
		return nil, NewValidationError(CodeInvalidInput, "", "邮箱格式不合法: %s", email)
	}
	if len(strings.TrimSpace(message)) < 10 {
		return nil, NewValidationError(CodeInvalidInput, "", "邀请消息至少10个字符")
	}
	if inviteeAddress != "" && !common.IsHexAddress(inviteeAddress) {
		return nil, NewValidationError(CodeInvalidInput, "", "受邀地址格式不合法: %s", inviteeAddress)
	}

	var project model.ProjectModel
	if err := l.db.First(&project, projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeNotFound, fmt.Sprintf("%d", projectId), "项目不存在")
		}
		return nil, fmt.Errorf("获取项目失败: %w", err)
	}

	if issuer != project.ClientAddress {
		return nil, NewAuthorizationError(CodeNotAuthorized, fmt.Sprintf("%d", projectId), "仅客户可签发邀请")
	}

	now := time.Now()
	invitation := &model.InvitationModel{
		Id:             uuid.NewString(),
		ProjectId:      projectId,
		ProjectTitle:   project.Title,
		Email:          email,
		InviteeAddress: inviteeAddress,
		Message:        message,
		IssuerAddress:  issuer,
		Status:         model.InvitationStatusPending,
		ExpiresAt:      now.AddDate(0, 0, l.cfg.ValidityDays),
	}

	if err := l.db.Create(invitation).Error; err != nil {
		return nil, fmt.Errorf("创建邀请失败: %w", err)
	}

	l.events.Emit(model.EventInvitationSent, projectId, invitation.Id, map[string]interface{}{
		"email":      email,
		"expires_at": invitation.ExpiresAt,
	})

	logger.Info("Invitation %s issued for project %d to %s", invitation.Id, projectId, email)
	return invitation, nil
}

// AcceptInvitation 接受邀请。接受方地址落库，后续项目以此为自由职业者。
func (l *InvitationLogic) AcceptInvitation(id, accepter string) (*model.InvitationModel, error) {
	if !common.IsHexAddress(accepter) {
		return nil, NewValidationError(CodeInvalidInput, id, "接受方地址格式不合法: %s", accepter)
	}

	invitation, err := l.GetInvitation(id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if invitation.Status != model.InvitationStatusPending {
		return nil, NewStateConflictError(CodeNotPending, id, "邀请当前状态(%s)不允许接受", invitation.Status)
	}
	if invitation.IsExpired(now) {
		return nil, NewStateConflictError(CodeExpired, id, "邀请已过期")
	}

	// 指定了受邀地址时只有该地址可接受
	if invitation.InviteeAddress != "" && !strings.EqualFold(invitation.InviteeAddress, accepter) {
		return nil, NewAuthorizationError(CodeNotAuthorized, id, "邀请指定了其他受邀地址")
	}

	if err := l.db.Model(invitation).Updates(map[string]interface{}{
		"status":      model.InvitationStatusAccepted,
		"accepted_at": &now,
		"accepted_by": accepter,
	}).Error; err != nil {
		return nil, fmt.Errorf("更新邀请失败: %w", err)
	}

	l.events.Emit(model.EventInvitationAccepted, invitation.ProjectId, id, map[string]interface{}{
		"accepted_by": accepter,
	})

	logger.Info("Invitation %s accepted by %s", id, accepter)
	invitation.Status = model.InvitationStatusAccepted
	invitation.AcceptedAt = &now
	invitation.AcceptedBy = accepter
	return invitation, nil
}

// DeclineInvitation 拒绝邀请，可附带说明
func (l *InvitationLogic) DeclineInvitation(id, note string) error {
	invitation, err := l.GetInvitation(id)
	if err != nil {
		return err
	}

	now := time.Now()
	if invitation.Status != model.InvitationStatusPending {
		return NewStateConflictError(CodeNotPending, id, "邀请当前状态(%s)不允许拒绝", invitation.Status)
	}
	if invitation.IsExpired(now) {
		return NewStateConflictError(CodeExpired, id, "邀请已过期")
	}

	if err := l.db.Model(invitation).Updates(map[string]interface{}{
		"status":       model.InvitationStatusDeclined,
		"declined_at":  &now,
		"decline_note": note,
	}).Error; err != nil {
		return fmt.Errorf("更新邀请失败: %w", err)
	}

	l.events.Emit(model.EventInvitationDeclined, invitation.ProjectId, id, map[string]interface{}{
		"note": note,
	})

	logger.Info("Invitation %s declined", id)
	return nil
}

// CancelInvitation 发起方取消邀请。过期的pending邀请同样允许取消。
func (l *InvitationLogic) CancelInvitation(id, issuer string) error {
	invitation, err := l.GetInvitation(id)
	if err != nil {
		return err
	}

	if issuer != invitation.IssuerAddress {
		return NewAuthorizationError(CodeNotAuthorized, id, "仅发起方可取消邀请")
	}
	if invitation.Status != model.InvitationStatusPending {
		return NewStateConflictError(CodeNotPending, id, "邀请当前状态(%s)不允许取消", invitation.Status)
	}

	now := time.Now()
	if err := l.db.Model(invitation).Updates(map[string]interface{}{
		"status":       model.InvitationStatusCancelled,
		"cancelled_at": &now,
	}).Error; err != nil {
		return fmt.Errorf("更新邀请失败: %w", err)
	}

	l.events.Emit(model.EventInvitationCancelled, invitation.ProjectId, id, nil)

	logger.Info("Invitation %s cancelled by issuer", id)
	return nil
}

// ResendInvitation 重发邀请：有效期从当前时刻重新计算
func (l *InvitationLogic) ResendInvitation(id, issuer string) (*model.InvitationModel, error) {
	invitation, err := l.GetInvitation(id)
	if err != nil {
		return nil, err
	}

	if issuer != invitation.IssuerAddress {
		return nil, NewAuthorizationError(CodeNotAuthorized, id, "仅发起方可重发邀请")
	}
	if invitation.Status != model.InvitationStatusPending {
		return nil, NewStateConflictError(CodeNotPending, id, "邀请当前状态(%s)不允许重发", invitation.Status)
	}

	expiresAt := time.Now().AddDate(0, 0, l.cfg.ValidityDays)
	if err := l.db.Model(invitation).Update("expires_at", expiresAt).Error; err != nil {
		return nil, fmt.Errorf("更新邀请有效期失败: %w", err)
	}

	l.events.Emit(model.EventInvitationSent, invitation.ProjectId, id, map[string]interface{}{
		"email":      invitation.Email,
		"expires_at": expiresAt,
		"resend":     true,
	})

	logger.Info("Invitation %s resent, new expiry %s", id, expiresAt)
	invitation.ExpiresAt = expiresAt
	return invitation, nil
}

// GetInvitation 获取邀请详情
func (l *InvitationLogic) GetInvitation(id string) (*model.InvitationModel, error) {
	var invitation model.InvitationModel
	if err := l.db.First(&invitation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeNotFound, id, "邀请不存在")
		}
		return nil, fmt.Errorf("获取邀请失败: %w", err)
	}
	return &invitation, nil
}

// GetInvitations 获取邀请列表（按项目或受邀邮箱过滤）
func (l *InvitationLogic) GetInvitations(projectId int64, email string, page, pageSize int) ([]model.InvitationModel, int64, error) {
	var invitations []model.InvitationModel
	var total int64

	query := l.db.Model(&model.InvitationModel{})
	if projectId > 0 {
		query = query.Where("project_id = ?", projectId)
	}
	if email != "" {
		query = query.Where("email = ?", email)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取邀请总数失败: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&invitations).Error; err != nil {
		return nil, 0, fmt.Errorf("获取邀请列表失败: %w", err)
	}

	return invitations, total, nil
}

// ExpiredPending 列出已超期但仍为pending的邀请（供定时任务发事件）
func (l *InvitationLogic) ExpiredPending(now time.Time, limit int) ([]model.InvitationModel, error) {
	var invitations []model.InvitationModel
	if err := l.db.Where("status = ? AND expires_at < ?", model.InvitationStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("查询过期邀请失败: %w", err)
	}
	return invitations, nil
}
