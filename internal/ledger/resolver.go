package ledger

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// IdentityMeta 身份展示信息
type IdentityMeta struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
}

// IdentityResolver 地址到展示信息的只读解析，尽力而为，失败不阻塞任何状态流转
type IdentityResolver interface {
	Resolve(ctx context.Context, address string) *IdentityMeta
}

// ERC725Y getData接口ABI
const erc725ABI = `[
	{
		"inputs": [{"name": "dataKey", "type": "bytes32"}],
		"name": "getData",
		"outputs": [{"name": "dataValue", "type": "bytes"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ChainResolver 从链上档案合约读取展示信息，带进程内缓存
type ChainResolver struct {
	client     *ethclient.Client
	profileABI abi.ABI
	profileKey common.Hash

	mu       sync.RWMutex
	cache    map[string]*cachedMeta
	cacheTTL time.Duration
}

type cachedMeta struct {
	meta      *IdentityMeta
	fetchedAt time.Time
}

// NewChainResolver 创建链上身份解析器
func NewChainResolver(client *ethclient.Client) (*ChainResolver, error) {
	parsedABI, err := abi.JSON(strings.NewReader(erc725ABI))
	if err != nil {
		return nil, err
	}

	return &ChainResolver{
		client:     client,
		profileABI: parsedABI,
		profileKey: crypto.Keccak256Hash([]byte("LSP3Profile")),
		cache:      make(map[string]*cachedMeta),
		cacheTTL:   time.Minute * 10,
	}, nil
}

// Resolve 解析地址的展示信息。任何失败都返回仅含地址的元信息。
func (r *ChainResolver) Resolve(ctx context.Context, address string) *IdentityMeta {
	fallback := &IdentityMeta{Address: address}

	// 先查缓存
	r.mu.RLock()
	cached, exists := r.cache[address]
	r.mu.RUnlock()
	if exists && time.Since(cached.fetchedAt) < r.cacheTTL {
		return cached.meta
	}

	data, err := r.profileABI.Pack("getData", r.profileKey)
	if err != nil {
		return fallback
	}

	contractAddr := common.HexToAddress(address)
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		logger.Debug("Failed to resolve identity %s: %v", address, err)
		return fallback
	}

	values, err := r.profileABI.Unpack("getData", raw)
	if err != nil || len(values) == 0 {
		return fallback
	}

	payload, ok := values[0].([]byte)
	if !ok || len(payload) == 0 {
		return fallback
	}

	// 档案数据为JSON编码的展示信息
	var profile struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	if err := json.Unmarshal(payload, &profile); err != nil {
		return fallback
	}

	meta := &IdentityMeta{
		Address: address,
		Name:    profile.Name,
		Avatar:  profile.Avatar,
	}

	r.mu.Lock()
	r.cache[address] = &cachedMeta{meta: meta, fetchedAt: time.Now()}
	r.mu.Unlock()

	return meta
}

// NoopResolver 不访问链的解析器，用于测试和trusted_bypass模式
type NoopResolver struct{}

// Resolve 返回仅含地址的元信息
func (NoopResolver) Resolve(ctx context.Context, address string) *IdentityMeta {
	return &IdentityMeta{Address: address}
}
