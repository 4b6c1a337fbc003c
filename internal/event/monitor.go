package event

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/devoffus/TrustLink/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Processor 链上日志处理器
type Processor interface {
	Topic() common.Hash
	Process(l types.Log) error
}

// Monitor 托管合约日志监控。
// 多签和DAO裁决直接发生在链上，不经过本服务接口，
// 监控负责把这类链上状态变化回灌到本地账本。
type Monitor struct {
	client     *ethclient.Client
	processors map[common.Hash]Processor
	interval   time.Duration
	lookback   int64 // 每轮回看的区块数

	lastBlock int64
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewMonitor 创建链上日志监控
func NewMonitor(client *ethclient.Client, interval time.Duration, processors ...Processor) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	byTopic := make(map[common.Hash]Processor, len(processors))
	for _, p := range processors {
		byTopic[p.Topic()] = p
	}

	return &Monitor{
		client:     client,
		processors: byTopic,
		interval:   interval,
		lookback:   256,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 开始监控链上事件
func (m *Monitor) Start() {
	logger.Info("Starting escrow log monitor")
	go m.monitorLoop()
}

// Stop 停止监控
func (m *Monitor) Stop() {
	m.cancel()
}

// monitorLoop 监控循环
func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			logger.Info("Escrow log monitor stopped")
			return
		case <-ticker.C:
			if err := m.poll(); err != nil {
				logger.Error("Error polling escrow logs: %v", err)
			}
		}
	}
}

// poll 拉取新区块中的托管合约日志
func (m *Monitor) poll() error {
	current, err := m.client.BlockNumber(m.ctx)
	if err != nil {
		return fmt.Errorf("failed to get current block number: %w", err)
	}

	from := m.lastBlock + 1
	if from == 1 || int64(current)-from > m.lookback {
		// 首轮或落后过多时只回看固定窗口
		from = int64(current) - m.lookback
		if from < 1 {
			from = 1
		}
	}
	if from > int64(current) {
		return nil
	}

	topics := make([]common.Hash, 0, len(m.processors))
	for topic := range m.processors {
		topics = append(topics, topic)
	}

	logs, err := m.client.FilterLogs(m.ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(from),
		ToBlock:   big.NewInt(int64(current)),
		Topics:    [][]common.Hash{topics},
	})
	if err != nil {
		return fmt.Errorf("failed to filter logs: %w", err)
	}

	for _, l := range logs {
		processor, ok := m.processors[l.Topics[0]]
		if !ok {
			continue
		}
		if err := processor.Process(l); err != nil {
			logger.Error("Error processing log %s:%d: %v", l.TxHash.Hex(), l.Index, err)
			continue
		}
	}

	m.lastBlock = int64(current)
	return nil
}

// EventTopic 计算事件签名的topic哈希
func EventTopic(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}
