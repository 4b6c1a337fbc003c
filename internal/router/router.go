package router

import (
	"github.com/devoffus/TrustLink/internal/handler"
	"github.com/devoffus/TrustLink/internal/ledger"
	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/gin-gonic/gin"
)

// Deps 路由依赖的业务逻辑集合
type Deps struct {
	Projects    *logic.ProjectLogic
	Escrows     *logic.EscrowLogic
	Disputes    *logic.DisputeLogic
	Invitations *logic.InvitationLogic
	Auth        *logic.AuthLogic
	Events      *logic.EventLogic
	Resolver    ledger.IdentityResolver
}

func Setup(deps Deps) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "trustlink",
		})
	})

	authHandler := handler.NewAuthHandler(deps.Auth)
	projectHandler := handler.NewProjectHandler(deps.Projects, deps.Escrows)
	milestoneHandler := handler.NewMilestoneHandler(deps.Escrows)
	disputeHandler := handler.NewDisputeHandler(deps.Disputes)
	invitationHandler := handler.NewInvitationHandler(deps.Invitations)
	eventHandler := handler.NewEventHandler(deps.Events)
	profileHandler := handler.NewProfileHandler(deps.Resolver)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 认证路由（挑战/验签无需令牌）
		auth := v1.Group("/auth")
		{
			auth.POST("/challenge", authHandler.CreateChallenge)
			auth.POST("/verify", authHandler.VerifySignature)
			auth.GET("/session", handler.AuthRequired(deps.Auth), authHandler.GetSession)
			auth.POST("/logout", handler.AuthRequired(deps.Auth), authHandler.Logout)
		}

		// 身份档案为公开只读
		v1.GET("/profiles/:address", profileHandler.GetProfile)

		// 其余路由需要有效会话
		authed := v1.Group("", handler.AuthRequired(deps.Auth))

		projects := authed.Group("/projects")
		{
			projects.POST("", projectHandler.CreateProject)
			projects.GET("", projectHandler.GetProjects)
			projects.GET("/stats", projectHandler.GetProjectStats)
			projects.GET("/:id", projectHandler.GetProject)
			projects.POST("/:id/activate", projectHandler.ActivateProject)
			projects.GET("/:id/milestones", projectHandler.GetProjectMilestones)
			projects.POST("/:id/milestones/:index/submit", milestoneHandler.SubmitMilestone)
			projects.GET("/:id/submissions", milestoneHandler.GetSubmissions)
			projects.POST("/:id/submissions/:submission_id/verify", milestoneHandler.VerifyMilestone)
			projects.POST("/:id/submissions/:submission_id/reject", milestoneHandler.RejectMilestone)
			projects.POST("/:id/disputes", disputeHandler.OpenDispute)
			projects.GET("/:id/disputes", disputeHandler.GetDisputes)
			projects.POST("/:id/disputes/resolve", disputeHandler.ResolveDispute)
			projects.GET("/:id/release-status", disputeHandler.GetReleaseStatus)
			projects.GET("/:id/transactions", projectHandler.GetProjectTransactions)
		}

		submissions := authed.Group("/submissions")
		{
			submissions.GET("/:submission_id", milestoneHandler.GetSubmission)
			submissions.POST("/:submission_id/comments", milestoneHandler.AddComment)
		}

		invitations := authed.Group("/invitations")
		{
			invitations.POST("", invitationHandler.CreateInvitation)
			invitations.GET("", invitationHandler.GetInvitations)
			invitations.GET("/:id", invitationHandler.GetInvitation)
			invitations.POST("/:id/accept", invitationHandler.AcceptInvitation)
			invitations.POST("/:id/decline", invitationHandler.DeclineInvitation)
			invitations.POST("/:id/cancel", invitationHandler.CancelInvitation)
			invitations.POST("/:id/resend", invitationHandler.ResendInvitation)
		}

		events := authed.Group("/events")
		{
			events.GET("", eventHandler.GetEvents)
			events.GET("/:id", eventHandler.GetEvent)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
