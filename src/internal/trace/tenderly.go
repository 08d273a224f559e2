package trace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
)

// DefaultTenderlyBaseURL 公开合约追踪接口
const DefaultTenderlyBaseURL = "https://api.tenderly.co/api/v1/public-contract"

var chainIDs = map[internal.Network]int{
	internal.NetworkEthereum:  1,
	internal.NetworkBSC:       56,
	internal.NetworkPolygon:   137,
	internal.NetworkArbitrum:  42161,
	internal.NetworkOptimism:  10,
	internal.NetworkBase:      8453,
	internal.NetworkBlast:     81457,
	internal.NetworkAvalanche: 43114,
	internal.NetworkFantom:    250,
	internal.NetworkLinea:     59144,
}

// ChainID 链对应的 chain id，未知链按以太坊主网处理
func ChainID(network internal.Network) int {
	if id, ok := chainIDs[network]; ok {
		return id
	}
	return 1
}

// TenderlyConfig 配置结构
type TenderlyConfig struct {
	BaseURL     string
	AccessKey   string // X-Access-Key 头
	BearerToken string // Authorization: Bearer 头
	Timeout     time.Duration
	Proxy       string
}

// TenderlyClient 查询 Tenderly 交易追踪
type TenderlyClient struct {
	baseURL     string
	accessKey   string
	bearerToken string
	httpClient  *http.Client
	logger      logrus.FieldLogger
}

// NewTenderlyClient 创建新的 Tenderly 客户端
func NewTenderlyClient(cfg TenderlyConfig, logger logrus.FieldLogger) (*TenderlyClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTenderlyBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	httpClient, err := internal.CreateProxyHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP客户端失败: %w", err)
	}

	return &TenderlyClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessKey:   cfg.AccessKey,
		bearerToken: cfg.BearerToken,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

func (c *TenderlyClient) Name() string {
	return "tenderly"
}

// FetchTrace 获取交易追踪，200 和 202 都视为成功
func (c *TenderlyClient) FetchTrace(ctx context.Context, txHash string, network internal.Network) (Evidence, error) {
	url := fmt.Sprintf("%s/%d/trace/%s", c.baseURL, ChainID(network), txHash)
	c.logger.WithField("url", url).Debug("🔗 查询 Tenderly")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.accessKey != "" {
		req.Header.Set("X-Access-Key", c.accessKey)
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pipeerr.Unavailable(pipeerr.StageTrace, txHash, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pipeerr.Unavailable(pipeerr.StageTrace, txHash, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		snippet := string(body)
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		return nil, pipeerr.Unavailable(pipeerr.StageTrace, txHash,
			fmt.Errorf("Tenderly 返回状态 %d: %s", resp.StatusCode, snippet))
	}

	ev, err := DecodeEvidenceBytes(body)
	if err != nil {
		return nil, pipeerr.Wrap(err, pipeerr.KindMalformedPayload, pipeerr.StageTrace, txHash, "追踪数据格式异常")
	}

	c.logger.WithFields(logrus.Fields{"tx": txHash, "keys": len(ev)}).Info("✅ 获取追踪数据成功")
	return ev, nil
}

// Close 清理资源
func (c *TenderlyClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
