package trace

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
)

// ReceiptSource *ethclient.Client 中本包用到的方法
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	Close()
}

// DialFunc 建立到节点的连接
type DialFunc func(ctx context.Context, rawurl string) (ReceiptSource, error)

func dialEthclient(ctx context.Context, rawurl string) (ReceiptSource, error) {
	return ethclient.DialContext(ctx, rawurl)
}

// RPCProvider 没有 Tenderly 数据时，用节点的交易与回执拼出简化追踪
//
// 只有概览、主调用和事件日志，没有资产变化和内部调用。
type RPCProvider struct {
	endpoints map[internal.Network]string
	dial      DialFunc
	logger    logrus.FieldLogger

	mu      sync.Mutex
	clients map[internal.Network]ReceiptSource
}

// NewRPCProvider endpoints 为链到 RPC URL 的映射
func NewRPCProvider(endpoints map[internal.Network]string, logger logrus.FieldLogger) *RPCProvider {
	return NewRPCProviderWithDialer(endpoints, dialEthclient, logger)
}

func NewRPCProviderWithDialer(endpoints map[internal.Network]string, dial DialFunc, logger logrus.FieldLogger) *RPCProvider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RPCProvider{
		endpoints: endpoints,
		dial:      dial,
		logger:    logger,
		clients:   make(map[internal.Network]ReceiptSource),
	}
}

func (p *RPCProvider) Name() string {
	return "rpc-receipt"
}

func (p *RPCProvider) client(ctx context.Context, network internal.Network) (ReceiptSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[network]; ok {
		return c, nil
	}
	url := strings.TrimSpace(p.endpoints[network])
	if url == "" {
		return nil, fmt.Errorf("未配置 %s 的 RPC 地址", network)
	}
	c, err := p.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 节点失败: %w", network, err)
	}
	p.clients[network] = c
	p.logger.WithField("network", network).Info("✅ 成功连接到节点")
	return c, nil
}

// FetchTrace 构造与 Tenderly 相同键名的简化数据
func (p *RPCProvider) FetchTrace(ctx context.Context, txHash string, network internal.Network) (Evidence, error) {
	c, err := p.client(ctx, network)
	if err != nil {
		return nil, pipeerr.Unavailable(pipeerr.StageTrace, txHash, err)
	}

	hash := common.HexToHash(txHash)
	receipt, err := c.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, pipeerr.Unavailable(pipeerr.StageTrace, txHash, fmt.Errorf("获取交易回执失败: %w", err))
	}

	ev := Evidence{
		"transaction_id": hash.Hex(),
		"metadata": map[string]any{
			"source": p.Name(),
			"status": receipt.Status,
		},
	}
	if receipt.BlockNumber != nil {
		ev["block_number"] = receipt.BlockNumber.String()
	}
	if receipt.ContractAddress != (common.Address{}) {
		ev["contract_address"] = strings.ToLower(receipt.ContractAddress.Hex())
	}

	callTrace := map[string]any{"gas_used": receipt.GasUsed}
	tx, _, err := c.TransactionByHash(ctx, hash)
	if err != nil {
		p.logger.WithError(err).WithField("tx", txHash).Warn("⚠️  获取交易详情失败，仅使用回执")
	} else if tx != nil {
		ev["gas_limit"] = tx.Gas()
		ev["gas_price"] = tx.GasPrice().String()
		ev["value"] = tx.Value().String()

		callTrace["call_type"] = "CALL"
		callTrace["gas"] = tx.Gas()
		callTrace["value"] = tx.Value().String()
		callTrace["input"] = hexutil.Encode(tx.Data())
		if to := tx.To(); to != nil {
			callTrace["to"] = strings.ToLower(to.Hex())
			if _, ok := ev["contract_address"]; !ok {
				ev["contract_address"] = strings.ToLower(to.Hex())
			}
		} else {
			callTrace["call_type"] = "CREATE"
		}
		if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
			callTrace["from"] = strings.ToLower(from.Hex())
		}
	}
	ev["call_trace"] = callTrace

	if len(receipt.Logs) > 0 {
		logs := make([]any, 0, len(receipt.Logs))
		for _, l := range receipt.Logs {
			topics := make([]any, len(l.Topics))
			for i, t := range l.Topics {
				topics[i] = t.Hex()
			}
			logs = append(logs, map[string]any{
				"address": strings.ToLower(l.Address.Hex()),
				"topics":  topics,
				"data":    hexutil.Encode(l.Data),
			})
		}
		ev["logs"] = logs
	}

	return ev, nil
}

// Close 关闭所有节点连接
func (p *RPCProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n, c := range p.clients {
		c.Close()
		delete(p.clients, n)
	}
	return nil
}
