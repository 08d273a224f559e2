package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
	"github.com/admi-n/poc-excavator/src/internal/trace"
)

// DefaultEtherscanBaseURL Etherscan v2 多链 API
const DefaultEtherscanBaseURL = "https://api.etherscan.io/v2"

// EtherscanConfig Etherscan API 配置
type EtherscanConfig struct {
	APIKey            string
	BaseURL           string
	Proxy             string // 可选的 HTTP 代理 URL（例如 http://127.0.0.1:7897）
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerSecond int // 免费 key 限制为 5 次/秒
}

// etherscanResponse 失败时 result 是一段字符串，所以先保留原始 JSON
type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceResult struct {
	SourceCode      string `json:"SourceCode"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
	Proxy           string `json:"Proxy"`
	Implementation  string `json:"Implementation"`
}

// ContractSource 已验证合约的源码
type ContractSource struct {
	Address         string
	Network         internal.Network
	ContractName    string
	CompilerVersion string
	SourceCode      string
	Implementation  string // 代理合约指向的实现地址
}

// FileName prompt 中使用的文件名
func (s *ContractSource) FileName() string {
	name := s.ContractName
	if name == "" {
		name = "Contract"
	}
	return fmt.Sprintf("%s_%s.sol", name, s.Address)
}

// EtherscanClient 查询已验证合约源码
type EtherscanClient struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
	limiter     *RateLimiter
	logger      logrus.FieldLogger
}

// NewEtherscanClient 创建 Etherscan 客户端
func NewEtherscanClient(cfg EtherscanConfig, logger logrus.FieldLogger) (*EtherscanClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, pipeerr.New(pipeerr.KindConfig, pipeerr.StageAnalysis, "etherscan", "Etherscan API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultEtherscanBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	httpClient, err := internal.CreateProxyHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP客户端失败: %w", err)
	}

	return &EtherscanClient{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  httpClient,
		maxAttempts: cfg.MaxAttempts,
		backoff:     500 * time.Millisecond,
		limiter:     NewRateLimiter(cfg.RequestsPerSecond),
		logger:      logger,
	}, nil
}

// GetContractSource 获取合约源码，未验证的合约返回 nil, nil
func (c *EtherscanClient) GetContractSource(ctx context.Context, network internal.Network, address string) (*ContractSource, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("解析 Etherscan BaseURL 失败: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api"

	q := url.Values{}
	q.Set("chainid", strconv.Itoa(trace.ChainID(network)))
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	q.Set("apikey", c.apiKey)
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String())
	if err != nil {
		return nil, pipeerr.Unavailable(pipeerr.StageAnalysis, address, err)
	}

	var resp etherscanResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pipeerr.Wrap(err, pipeerr.KindMalformedPayload, pipeerr.StageAnalysis, address, "解析 Etherscan JSON 失败")
	}
	// status != "1" 表示未验证或业务层面的问题，不是网络错误
	if resp.Status != "1" {
		return nil, nil
	}

	var results []sourceResult
	if err := json.Unmarshal(resp.Result, &results); err != nil {
		return nil, pipeerr.Wrap(err, pipeerr.KindMalformedPayload, pipeerr.StageAnalysis, address, "解析 Etherscan result 失败")
	}
	if len(results) == 0 || strings.TrimSpace(results[0].SourceCode) == "" {
		return nil, nil
	}

	res := results[0]
	return &ContractSource{
		Address:         common.HexToAddress(address).Hex(),
		Network:         network,
		ContractName:    res.ContractName,
		CompilerVersion: res.CompilerVersion,
		SourceCode:      FlattenSourceCode(res.SourceCode),
		Implementation:  res.Implementation,
	}, nil
}

// get 短暂网络错误/EOF/超时时重试
func (c *EtherscanClient) get(ctx context.Context, finalURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", "poc-excavator/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if isTemporaryNetErr(err) && attempt < c.maxAttempts {
				c.sleep(ctx, attempt)
				continue
			}
			return nil, fmt.Errorf("请求 Etherscan API 失败: %w", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if isTemporaryNetErr(readErr) && attempt < c.maxAttempts {
				c.sleep(ctx, attempt)
				continue
			}
			return nil, fmt.Errorf("读取 Etherscan 响应失败: %w", readErr)
		}

		if resp.StatusCode != http.StatusOK {
			snippet := string(body)
			if len(snippet) > 1024 {
				snippet = snippet[:1024]
			}
			lastErr = fmt.Errorf("Etherscan 返回非 200 状态: %d, body: %s", resp.StatusCode, snippet)
			if resp.StatusCode >= 500 && attempt < c.maxAttempts {
				c.sleep(ctx, attempt)
				continue
			}
			return nil, lastErr
		}
		return body, nil
	}
	return nil, fmt.Errorf("请求 Etherscan 多次失败: %w", lastErr)
}

func (c *EtherscanClient) sleep(ctx context.Context, attempt int) {
	t := time.NewTimer(time.Duration(attempt) * c.backoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// FetchSources 批量获取已验证源码，单个地址失败只记日志
func (c *EtherscanClient) FetchSources(ctx context.Context, network internal.Network, addresses []string) []*ContractSource {
	var out []*ContractSource
	for _, addr := range addresses {
		src, err := c.GetContractSource(ctx, network, addr)
		if err != nil {
			c.logger.WithError(err).Warnf("⚠️  获取合约源码失败: %s", addr)
			continue
		}
		if src == nil {
			c.logger.Debugf("合约未验证: %s", addr)
			continue
		}
		c.logger.Infof("📄 获取合约源码: %s (%d chars)", src.FileName(), len(src.SourceCode))
		out = append(out, src)
	}
	return out
}

// Close 停止限流器
func (c *EtherscanClient) Close() error {
	c.limiter.Stop()
	c.httpClient.CloseIdleConnections()
	return nil
}

// FlattenSourceCode 把 standard-json 格式的多文件源码拼成一个文本
//
// Etherscan 对多文件合约返回 "{{...}}" 包裹的 JSON，单文件合约原样返回。
func FlattenSourceCode(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		trimmed = trimmed[1 : len(trimmed)-1]
	}
	if !strings.HasPrefix(trimmed, "{") {
		return raw
	}

	var payload struct {
		Sources map[string]struct {
			Content string `json:"content"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil || len(payload.Sources) == 0 {
		// 部分合约直接返回 {文件名: {content}}
		var flat map[string]struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(trimmed), &flat); err != nil || len(flat) == 0 {
			return raw
		}
		payload.Sources = flat
	}

	names := make([]string, 0, len(payload.Sources))
	for name := range payload.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "// File: %s\n%s", name, payload.Sources[name].Content)
	}
	return b.String()
}

// isTemporaryNetErr 判断是否为可重试的网络错误
func isTemporaryNetErr(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// RateLimiter 简单的速率限制器
type RateLimiter struct {
	ticker *time.Ticker
}

// NewRateLimiter 创建速率限制器（每秒最多 requestsPerSecond 个请求）
func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	interval := time.Second / time.Duration(requestsPerSecond)
	return &RateLimiter{
		ticker: time.NewTicker(interval),
	}
}

// Wait 等待直到可以发送下一个请求
func (r *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-r.ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止速率限制器
func (r *RateLimiter) Stop() {
	r.ticker.Stop()
}
