package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/devoffus/TrustLink/internal/logic"
	"github.com/gin-gonic/gin"
)

// AuthHandler 钱包登录认证接口
type AuthHandler struct {
	authLogic *logic.AuthLogic
}

// NewAuthHandler 创建认证接口
func NewAuthHandler(authLogic *logic.AuthLogic) *AuthHandler {
	return &AuthHandler{authLogic: authLogic}
}

// CreateChallenge 签发登录挑战，返回待签名消息
func (h *AuthHandler) CreateChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	challenge, err := h.authLogic.CreateChallenge(req.Address)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "挑战已签发", gin.H{
		"nonce":           challenge.Nonce,
		"message":         challenge.Message,
		"expiration_time": challenge.ExpirationTime,
	})
}

// VerifySignature 验签并建立会话，返回API令牌
func (h *AuthHandler) VerifySignature(c *gin.Context) {
	var req VerifySignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.authLogic.VerifySignature(req.Nonce, req.Signature)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	token, err := h.authLogic.IssueToken(session)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "登录成功", gin.H{
		"token":           token,
		"session_id":      session.Id,
		"address":         session.Address,
		"expiration_time": session.ExpirationTime,
	})
}

// GetSession 查询当前会话状态
func (h *AuthHandler) GetSession(c *gin.Context) {
	sessionId := c.GetString("session_id")
	session, err := h.authLogic.GetSession(sessionId)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	now := time.Now()
	SuccessResponse(c, http.StatusOK, "ok", gin.H{
		"session_id":      session.Id,
		"address":         session.Address,
		"expiration_time": session.ExpirationTime,
		"valid":           session.IsValid(now),
		"needs_refresh":   h.authLogic.NeedsRefresh(session, now),
	})
}

// Logout 吊销当前会话
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authLogic.RevokeSession(c.GetString("session_id")); err != nil {
		AppErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "已登出", nil)
}

// AuthRequired 认证中间件：校验Bearer令牌并注入会话身份
func AuthRequired(authLogic *logic.AuthLogic) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ErrorResponse(c, http.StatusUnauthorized, "缺少Bearer令牌")
			c.Abort()
			return
		}

		session, err := authLogic.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			ErrorResponse(c, http.StatusUnauthorized, err.Error())
			c.Abort()
			return
		}

		c.Set("address", session.Address)
		c.Set("session_id", session.Id)
		c.Next()
	}
}
