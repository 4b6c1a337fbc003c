package main

import (
	"log"
	"time"

	"github.com/devoffus/TrustLink/internal/config"
	"github.com/devoffus/TrustLink/internal/event"
	"github.com/devoffus/TrustLink/internal/ledger"
	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/devoffus/TrustLink/internal/repository"
	"github.com/devoffus/TrustLink/internal/router"
	"github.com/devoffus/TrustLink/internal/task"
	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	level := logger.ParseLogLevel(cfg.Log.Level)
	var lg *logger.Logger
	var lgErr error
	if cfg.Log.Output == "file" {
		lg, lgErr = logger.NewWithFileRotation(level, cfg.Log.File)
	} else {
		lg, lgErr = logger.New(level)
	}
	if lgErr != nil {
		log.Fatalf("Failed to initialize logger: %v", lgErr)
	}
	logger.SetDefaultLogger(lg)
	defer logger.Sync()

	// 初始化数据库
	db, err := repository.Init(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化链上客户端
	chainClient, err := ledger.Init(cfg.Chain)
	if err != nil {
		log.Fatalf("Failed to initialize chain client: %v", err)
	}
	defer chainClient.Close()

	resolver, err := ledger.NewChainResolver(chainClient.EthClient())
	if err != nil {
		log.Fatalf("Failed to initialize identity resolver: %v", err)
	}

	// 组装业务逻辑
	locks := logic.NewProjectLocks()
	events := logic.NewEventLogic(db)
	projects := logic.NewProjectLogic(db)
	disputes := logic.NewDisputeLogic(db, chainClient, events, locks)
	escrows := logic.NewEscrowLogic(db, chainClient, events, disputes, locks)
	invitations := logic.NewInvitationLogic(db, events, cfg.Invitation)
	auth := logic.NewAuthLogic(db, cfg.Auth, cfg.Chain.ChainId)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(router.Deps{
		Projects:    projects,
		Escrows:     escrows,
		Disputes:    disputes,
		Invitations: invitations,
		Auth:        auth,
		Events:      events,
		Resolver:    resolver,
	})

	// 启动定时任务
	manager := task.Start(db, chainClient, escrows, disputes, invitations, events, cfg)
	defer manager.Stop()

	// 启动链上日志监控（多签/DAO裁决发生在链上，需要回灌本地状态）
	monitor := event.NewMonitor(chainClient.EthClient(),
		time.Duration(cfg.Task.Interval)*time.Second,
		event.NewDisputeResolvedProcessor(db, disputes))
	monitor.Start()
	defer monitor.Stop()

	// 启动服务器
	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
