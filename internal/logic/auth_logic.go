package logic

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devoffus/TrustLink/internal/config"
	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/devoffus/TrustLink/internal/model"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthLogic 钱包登录认证：挑战-应答 + 会话管理。
// 挑战消息遵循EIP-4361，nonce一次性使用防重放。
type AuthLogic struct {
	db      *gorm.DB
	cfg     config.AuthConfig
	chainId int64
}

// NewAuthLogic 创建认证业务逻辑
func NewAuthLogic(db *gorm.DB, cfg config.AuthConfig, chainId int64) *AuthLogic {
	return &AuthLogic{db: db, cfg: cfg, chainId: chainId}
}

// TokenClaims API令牌声明
type TokenClaims struct {
	Address   string `json:"address"`
	SessionId string `json:"session_id"`
	jwt.RegisteredClaims
}

// CreateChallenge 为地址签发登录挑战。每次调用生成新的nonce与消息。
func (a *AuthLogic) CreateChallenge(address string) (*model.ChallengeModel, error) {
	if !common.IsHexAddress(address) {
		return nil, NewValidationError(CodeInvalidInput, address, "地址格式不合法")
	}
	// 统一为校验和格式，避免大小写造成的地址比对问题
	address = common.HexToAddress(address).Hex()

	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiry := now.Add(time.Duration(a.cfg.ChallengeTTL) * time.Hour)

	message := BuildSiweMessage(SiweParams{
		Domain:         a.cfg.Domain,
		Address:        address,
		Statement:      a.cfg.Statement,
		URI:            a.cfg.URI,
		ChainId:        a.chainId,
		Nonce:          nonce,
		IssuedAt:       now,
		ExpirationTime: expiry,
		Resources:      []string{a.cfg.URI},
	})

	challenge := &model.ChallengeModel{
		Nonce:          nonce,
		Address:        address,
		ChainId:        a.chainId,
		Message:        message,
		IssuedAt:       now,
		ExpirationTime: expiry,
	}

	if err := a.db.Create(challenge).Error; err != nil {
		return nil, fmt.Errorf("创建登录挑战失败: %w", err)
	}

	logger.Debug("Issued challenge for %s, nonce %s", address, nonce)
	return challenge, nil
}

// VerifySignature 校验挑战签名并建立会话。
// nonce消费为原子操作，同一挑战只能建立一个会话。
func (a *AuthLogic) VerifySignature(nonce, signature string) (*model.SessionModel, error) {
	var challenge model.ChallengeModel
	if err := a.db.First(&challenge, "nonce = ?", nonce).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewAuthorizationError(CodeNonceReplayed, nonce, "登录挑战不存在")
		}
		return nil, fmt.Errorf("获取登录挑战失败: %w", err)
	}

	now := time.Now()
	if challenge.Consumed {
		return nil, NewAuthorizationError(CodeNonceReplayed, nonce, "登录挑战已被使用")
	}
	if now.After(challenge.ExpirationTime) {
		return nil, NewAuthorizationError(CodeChallengeExpired, nonce, "登录挑战已过期")
	}

	// 显式开启信任旁路时跳过验签，仅供本地联调
	if !a.cfg.TrustedBypass {
		recovered, err := recoverAddress(challenge.Message, signature)
		if err != nil {
			return nil, NewAuthorizationError(CodeSignatureMismatch, nonce, "签名解析失败: %v", err)
		}
		if !strings.EqualFold(recovered, challenge.Address) {
			return nil, NewAuthorizationError(CodeSignatureMismatch, nonce,
				"签名地址不匹配: 期望%s，实际%s", challenge.Address, recovered)
		}
	} else {
		logger.Warn("Trusted bypass enabled: skipping signature verification for %s", challenge.Address)
	}

	session := &model.SessionModel{
		Id:             uuid.NewString(),
		Address:        challenge.Address,
		ChainId:        challenge.ChainId,
		Message:        challenge.Message,
		Signature:      signature,
		IssuedAt:       now,
		ExpirationTime: challenge.ExpirationTime,
	}

	err := a.db.Transaction(func(tx *gorm.DB) error {
		// 条件更新保证nonce只被消费一次
		res := tx.Model(&model.ChallengeModel{}).
			Where("nonce = ? AND consumed = ?", nonce, false).
			Update("consumed", true)
		if res.Error != nil {
			return fmt.Errorf("消费登录挑战失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return NewAuthorizationError(CodeNonceReplayed, nonce, "登录挑战已被使用")
		}

		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("创建会话失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Session %s established for %s", session.Id, session.Address)
	return session, nil
}

// recoverAddress 从签名恢复签名者地址（EIP-191个人消息签名）
func recoverAddress(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("签名不是合法的十六进制: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("签名长度必须为65字节，实际%d", len(sig))
	}

	// 钱包普遍返回V为27/28，恢复公钥前归一化为0/1
	if sig[64] >= 27 {
		sig = append([]byte{}, sig...)
		sig[64] -= 27
	}

	hash := accounts.TextHash([]byte(message))
	pubkey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("恢复公钥失败: %w", err)
	}

	return crypto.PubkeyToAddress(*pubkey).Hex(), nil
}

// IssueToken 为会话签发API令牌
func (a *AuthLogic) IssueToken(session *model.SessionModel) (string, error) {
	claims := TokenClaims{
		Address:   session.Address,
		SessionId: session.Id,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Address,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpirationTime),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, nil
}

// ValidateToken 校验API令牌并返回对应会话。
// 令牌有效还需会话未被吊销且未过期。
func (a *AuthLogic) ValidateToken(tokenString string) (*model.SessionModel, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("不支持的签名算法: %v", t.Header["alg"])
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, NewAuthorizationError(CodeSessionInvalid, "", "令牌无效: %v", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok {
		return nil, NewAuthorizationError(CodeSessionInvalid, "", "令牌声明不合法")
	}

	session, err := a.GetSession(claims.SessionId)
	if err != nil {
		return nil, err
	}
	if !session.IsValid(time.Now()) {
		return nil, NewAuthorizationError(CodeSessionInvalid, session.Id, "会话已失效")
	}

	return session, nil
}

// GetSession 获取会话
func (a *AuthLogic) GetSession(id string) (*model.SessionModel, error) {
	var session model.SessionModel
	if err := a.db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewAuthorizationError(CodeSessionInvalid, id, "会话不存在")
		}
		return nil, fmt.Errorf("获取会话失败: %w", err)
	}
	return &session, nil
}

// NeedsRefresh 会话是否临近过期，需要客户端重新走挑战流程
func (a *AuthLogic) NeedsRefresh(session *model.SessionModel, now time.Time) bool {
	threshold := time.Duration(a.cfg.RefreshThreshold) * time.Minute
	return session.IsValid(now) && session.ExpirationTime.Sub(now) <= threshold
}

// RevokeSession 吊销会话（登出）
func (a *AuthLogic) RevokeSession(id string) error {
	res := a.db.Model(&model.SessionModel{}).Where("id = ?", id).Update("revoked", true)
	if res.Error != nil {
		return fmt.Errorf("吊销会话失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return NewAuthorizationError(CodeSessionInvalid, id, "会话不存在")
	}

	logger.Info("Session %s revoked", id)
	return nil
}
