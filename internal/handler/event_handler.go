package handler

import (
	"net/http"
	"strconv"

	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/gin-gonic/gin"
)

// EventHandler 领域事件查询接口
type EventHandler struct {
	eventLogic *logic.EventLogic
}

// NewEventHandler 创建事件接口
func NewEventHandler(eventLogic *logic.EventLogic) *EventHandler {
	return &EventHandler{eventLogic: eventLogic}
}

// GetEvents 获取事件列表
func (h *EventHandler) GetEvents(c *gin.Context) {
	projectId, _ := strconv.ParseInt(c.Query("project_id"), 10, 64)
	eventType := c.Query("event_type")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	events, total, err := h.eventLogic.GetEvents(projectId, eventType, page, pageSize)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", gin.H{
		"events":     events,
		"pagination": NewPagination(page, pageSize, total),
	})
}

// GetEvent 获取单个事件
func (h *EventHandler) GetEvent(c *gin.Context) {
	event, err := h.eventLogic.GetEvent(c.Param("id"))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", event)
}
