package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/devoffus/TrustLink/internal/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client 链上托管合约客户端
type Client struct {
	client        *ethclient.Client
	privateKey    *ecdsa.PrivateKey
	from          common.Address
	factoryAddr   common.Address
	chainId       int64
	confirmations int
	factoryABI    abi.ABI
	escrowABI     abi.ABI
}

// 托管工厂合约ABI定义（简化版）
const factoryABI = `[
	{
		"inputs": [
			{"name": "client", "type": "address"},
			{"name": "freelancer", "type": "address"},
			{"name": "percentages", "type": "uint256[]"},
			{"name": "releaseType", "type": "uint8"},
			{"name": "disputeMode", "type": "uint8"},
			{"name": "timelockDays", "type": "uint256"}
		],
		"name": "createEscrow",
		"outputs": [{"name": "escrow", "type": "address"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "escrowAddress", "type": "address"},
			{"indexed": true, "name": "client", "type": "address"},
			{"indexed": true, "name": "freelancer", "type": "address"}
		],
		"name": "EscrowCreated",
		"type": "event"
	}
]`

// 托管合约ABI定义（简化版）
const escrowABI = `[
	{
		"inputs": [{"name": "milestoneId", "type": "uint256"}],
		"name": "submitMilestone",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "milestoneId", "type": "uint256"}],
		"name": "approveMilestone",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "reason", "type": "string"}],
		"name": "openDispute",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

func Init(cfg config.ChainConfig) (*Client, error) {
	// 连接链客户端
	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain client: %w", err)
	}

	// 解析私钥
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	// 解析ABI
	parsedFactoryABI, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}
	parsedEscrowABI, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %w", err)
	}

	return &Client{
		client:        client,
		privateKey:    privateKey,
		from:          crypto.PubkeyToAddress(privateKey.PublicKey),
		factoryAddr:   common.HexToAddress(cfg.EscrowFactory),
		chainId:       cfg.ChainId,
		confirmations: cfg.Confirmations,
		factoryABI:    parsedFactoryABI,
		escrowABI:     parsedEscrowABI,
	}, nil
}

// CreateEscrow 部署托管合约并注入预算
func (c *Client) CreateEscrow(ctx context.Context, params CreateEscrowParams) (*OpHandle, error) {
	percentages := make([]*big.Int, len(params.Percentages))
	for i, p := range params.Percentages {
		percentages[i] = big.NewInt(int64(p))
	}

	data, err := c.factoryABI.Pack("createEscrow",
		common.HexToAddress(params.Client),
		common.HexToAddress(params.Freelancer),
		percentages,
		params.ReleaseType,
		params.DisputeMode,
		big.NewInt(int64(params.TimelockDays)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createEscrow call: %w", err)
	}

	// 预算随交易注入托管合约
	return c.sendTransaction(ctx, c.factoryAddr, big.NewInt(params.Budget), data)
}

// SubmitMilestone 在托管合约上登记里程碑提交
func (c *Client) SubmitMilestone(ctx context.Context, escrowAddr string, index int) (*OpHandle, error) {
	data, err := c.escrowABI.Pack("submitMilestone", big.NewInt(int64(index)))
	if err != nil {
		return nil, fmt.Errorf("failed to pack submitMilestone call: %w", err)
	}

	return c.sendTransaction(ctx, common.HexToAddress(escrowAddr), big.NewInt(0), data)
}

// ApproveMilestone 验收里程碑并触发资金释放
func (c *Client) ApproveMilestone(ctx context.Context, escrowAddr string, index int) (*OpHandle, error) {
	data, err := c.escrowABI.Pack("approveMilestone", big.NewInt(int64(index)))
	if err != nil {
		return nil, fmt.Errorf("failed to pack approveMilestone call: %w", err)
	}

	return c.sendTransaction(ctx, common.HexToAddress(escrowAddr), big.NewInt(0), data)
}

// OpenDispute 在托管合约上开启争议
func (c *Client) OpenDispute(ctx context.Context, escrowAddr string, reason string) (*OpHandle, error) {
	data, err := c.escrowABI.Pack("openDispute", reason)
	if err != nil {
		return nil, fmt.Errorf("failed to pack openDispute call: %w", err)
	}

	return c.sendTransaction(ctx, common.HexToAddress(escrowAddr), big.NewInt(0), data)
}

// sendTransaction 组装、签名并发送交易
func (c *Client) sendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (*OpHandle, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(c.chainId)), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	return &OpHandle{TxHash: signedTx.Hash().Hex()}, nil
}

// OpStatus 查询操作确认状态
func (c *Client) OpStatus(ctx context.Context, txHash string) (*OpResult, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if err == ethereum.NotFound {
			return &OpResult{State: OpPending, TxHash: txHash}, nil
		}
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return &OpResult{
			State:       OpFailed,
			TxHash:      txHash,
			BlockNumber: receipt.BlockNumber.Uint64(),
			Err:         "transaction reverted",
		}, nil
	}

	// 等待足够的确认区块数
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block header: %w", err)
	}
	if header.Number.Uint64() < receipt.BlockNumber.Uint64()+uint64(c.confirmations) {
		return &OpResult{State: OpPending, TxHash: txHash}, nil
	}

	result := &OpResult{
		State:       OpConfirmed,
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}

	// 从回执日志解析托管合约地址（仅createEscrow交易包含该事件）
	if addr := c.parseEscrowCreated(receipt); addr != "" {
		result.EscrowAddress = addr
	}

	return result, nil
}

// parseEscrowCreated 从回执日志中提取EscrowCreated事件的合约地址
func (c *Client) parseEscrowCreated(receipt *types.Receipt) string {
	eventID := c.factoryABI.Events["EscrowCreated"].ID

	for _, log := range receipt.Logs {
		if len(log.Topics) < 2 || log.Topics[0] != eventID {
			continue
		}
		return common.BytesToAddress(log.Topics[1].Bytes()).Hex()
	}

	return ""
}

// GetAccountAddress 获取服务端账户地址
func (c *Client) GetAccountAddress() common.Address {
	return c.from
}

// EthClient 暴露底层RPC客户端，供身份解析等只读场景复用连接
func (c *Client) EthClient() *ethclient.Client {
	return c.client
}

// Close 关闭客户端连接
func (c *Client) Close() {
	c.client.Close()
}
