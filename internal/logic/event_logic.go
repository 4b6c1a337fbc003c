package logic

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/devoffus/TrustLink/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventLogic 领域事件业务逻辑
type EventLogic struct {
	db *gorm.DB
}

// NewEventLogic 创建领域事件业务逻辑
func NewEventLogic(db *gorm.DB) *EventLogic {
	return &EventLogic{db: db}
}

// Emit 记录领域事件（至少一次投递，消费方按事件ID去重）
func (e *EventLogic) Emit(eventType string, projectId int64, entityId string, payload interface{}) {
	data := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			logger.Error("Failed to marshal event payload for %s: %v", eventType, err)
		} else {
			data = string(raw)
		}
	}

	event := &model.DomainEventModel{
		Id:        uuid.NewString(),
		EventType: eventType,
		ProjectId: projectId,
		EntityId:  entityId,
		Data:      data,
	}

	// 事件写入失败只记日志，不阻塞业务流转
	if err := e.db.Create(event).Error; err != nil {
		logger.Error("Failed to persist domain event %s: %v", eventType, err)
		return
	}

	logger.Debug("Emitted event %s for project %d", eventType, projectId)
}

// GetEvents 获取事件列表
func (e *EventLogic) GetEvents(projectId int64, eventType string, page, pageSize int) ([]model.DomainEventModel, int64, error) {
	var events []model.DomainEventModel
	var total int64

	// 构建查询条件
	query := e.db.Model(&model.DomainEventModel{})
	if projectId > 0 {
		query = query.Where("project_id = ?", projectId)
	}
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取事件总数失败: %w", err)
	}

	// 分页查询
	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("获取事件列表失败: %w", err)
	}

	return events, total, nil
}

// GetUnprocessedEvents 获取未处理的事件
func (e *EventLogic) GetUnprocessedEvents(limit int) ([]model.DomainEventModel, error) {
	var events []model.DomainEventModel
	if err := e.db.Where("processed = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("获取未处理事件失败: %w", err)
	}

	return events, nil
}

// MarkProcessed 标记事件已处理
func (e *EventLogic) MarkProcessed(id string) error {
	if err := e.db.Model(&model.DomainEventModel{}).Where("id = ?", id).Update("processed", true).Error; err != nil {
		return fmt.Errorf("更新事件处理状态失败: %w", err)
	}

	return nil
}

// GetEvent 获取单个事件
func (e *EventLogic) GetEvent(id string) (*model.DomainEventModel, error) {
	var event model.DomainEventModel
	if err := e.db.First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodeNotFound, id, "事件不存在")
		}
		return nil, fmt.Errorf("获取事件失败: %w", err)
	}

	return &event, nil
}
