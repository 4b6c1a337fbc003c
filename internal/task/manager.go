package task

import (
	"github.com/devoffus/TrustLink/internal/config"
	"github.com/devoffus/TrustLink/internal/ledger"
	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// Manager 任务管理器
type Manager struct {
	scheduler   gocron.Scheduler
	db          *gorm.DB
	gateway     ledger.Gateway
	escrows     *logic.EscrowLogic
	disputes    *logic.DisputeLogic
	invitations *logic.InvitationLogic
	events      *logic.EventLogic
	config      *config.Config
}

// NewManager 创建新的任务管理器
func NewManager(db *gorm.DB, gateway ledger.Gateway, escrows *logic.EscrowLogic,
	disputes *logic.DisputeLogic, invitations *logic.InvitationLogic,
	events *logic.EventLogic, cfg *config.Config) *Manager {

	s, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}

	return &Manager{
		scheduler:   s,
		db:          db,
		gateway:     gateway,
		escrows:     escrows,
		disputes:    disputes,
		invitations: invitations,
		events:      events,
		config:      cfg,
	}
}

// Start 启动任务管理器
func Start(db *gorm.DB, gateway ledger.Gateway, escrows *logic.EscrowLogic,
	disputes *logic.DisputeLogic, invitations *logic.InvitationLogic,
	events *logic.EventLogic, cfg *config.Config) *Manager {

	manager := NewManager(db, gateway, escrows, disputes, invitations, events, cfg)

	// 注册所有任务
	manager.RegisterJobs()

	// 启动调度器
	manager.scheduler.Start()

	logger.Info("Task manager started successfully")
	return manager
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() {
	// 注册链上操作确认任务
	m.registerJob(NewLedgerConfirmJob(m.db, m.gateway, m.escrows, m.disputes, m.config))

	// 注册邀请过期任务
	m.registerJob(NewInvitationExpiryJob(m.invitations, m.events, m.config))
}

// Job 定时任务接口
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

func (m *Manager) registerJob(job Job) {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
