package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
)

// Manager 管理 AI 客户端和分析请求
type Manager struct {
	client    AIClient
	rateLimit *rateLimiter
	logger    logrus.FieldLogger
	mu        sync.Mutex
}

// rateLimiter 令牌桶，Stop 后补充协程退出
type rateLimiter struct {
	requests chan struct{}
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	rl := &rateLimiter{
		requests: make(chan struct{}, requestsPerMinute),
		interval: time.Minute / time.Duration(requestsPerMinute),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	for i := 0; i < requestsPerMinute; i++ {
		rl.requests <- struct{}{}
	}

	go func() {
		defer close(rl.done)
		ticker := time.NewTicker(rl.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case rl.requests <- struct{}{}:
				default:
				}
			case <-rl.stop:
				return
			}
		}
	}()

	return rl
}

func (rl *rateLimiter) Wait(ctx context.Context) error {
	select {
	case <-rl.requests:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rl *rateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
	<-rl.done
}

// ManagerConfig 管理器配置，APIKey 由调用方从 config 取好
type ManagerConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Reasoning      bool
	Timeout        time.Duration
	Proxy          string
	RequestsPerMin int
	Logger         logrus.FieldLogger
}

// NewManager 创建新的 AI 管理器
func NewManager(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	c, err := NewAIClient(ctx, AIClientConfig{
		Provider:  cfg.Provider,
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		Reasoning: cfg.Reasoning,
		Timeout:   cfg.Timeout,
		Proxy:     cfg.Proxy,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}
	return NewManagerWithClient(c, cfg.RequestsPerMin, cfg.Logger), nil
}

// NewManagerWithClient 使用已有客户端创建管理器
func NewManagerWithClient(c AIClient, requestsPerMin int, logger logrus.FieldLogger) *Manager {
	if requestsPerMin <= 0 {
		requestsPerMin = 20
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		client:    c,
		rateLimit: newRateLimiter(requestsPerMin),
		logger:    logger,
	}
}

// AnalyzeRootCause 发送分析 prompt，返回模型的 markdown 分析
//
// 调用失败或返回空文本都视为外部服务不可用。
func (m *Manager) AnalyzeRootCause(ctx context.Context, subject, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.rateLimit.Wait(ctx); err != nil {
		return "", pipeerr.Unavailable(pipeerr.StageAnalysis, subject, fmt.Errorf("rate limit wait failed: %w", err))
	}

	m.logger.Infof("🤖 正在使用 %s 分析 %s...", m.client.GetName(), subject)

	startTime := time.Now()
	response, err := m.client.Analyze(ctx, prompt)
	if err != nil {
		return "", pipeerr.Unavailable(pipeerr.StageAnalysis, subject, err)
	}
	if strings.TrimSpace(response) == "" {
		return "", pipeerr.New(pipeerr.KindExternalUnavailable, pipeerr.StageAnalysis, subject, "模型返回空结果")
	}

	m.logger.Infof("✅ 分析完成，耗时: %v", time.Since(startTime).Round(time.Millisecond))
	return response, nil
}

// GetClientInfo 当前客户端名称
func (m *Manager) GetClientInfo() string {
	return m.client.GetName()
}

// Close 停止限流器并关闭客户端
func (m *Manager) Close() error {
	m.rateLimit.Stop()
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// TestConnection 发送一条简单消息确认 key 和网络可用
func (m *Manager) TestConnection(ctx context.Context) error {
	m.logger.Info("🔍 测试 AI 客户端连接...")

	_, err := m.client.Analyze(ctx, "Please respond with 'OK' if you can read this message.")
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	m.logger.Info("✅ AI 客户端连接成功!")
	return nil
}
