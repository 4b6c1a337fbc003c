package logic

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SiweParams 构造EIP-4361签名消息所需的参数
type SiweParams struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	ChainId        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time
	Resources      []string
}

// BuildSiweMessage 构造EIP-4361规范的签名消息。
// 验签时按nonce重建同一消息，逐字节比较，格式必须稳定。
func BuildSiweMessage(p SiweParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s wants you to sign in with your LUKSO account:\n%s\n\n", p.Domain, p.Address)

	if p.Statement != "" {
		fmt.Fprintf(&b, "%s\n\n", p.Statement)
	}

	fmt.Fprintf(&b, "URI: %s\n", p.URI)
	fmt.Fprintf(&b, "Version: 1\n")
	fmt.Fprintf(&b, "Chain ID: %d\n", p.ChainId)
	fmt.Fprintf(&b, "Nonce: %s\n", p.Nonce)
	fmt.Fprintf(&b, "Issued At: %s\n", p.IssuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Expiration Time: %s", p.ExpirationTime.UTC().Format(time.RFC3339))

	if len(p.Resources) > 0 {
		fmt.Fprintf(&b, "\nResources:")
		for _, r := range p.Resources {
			fmt.Fprintf(&b, "\n- %s", r)
		}
	}

	return b.String()
}

// NewNonce 生成128位随机数的十六进制表示
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成随机数失败: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
