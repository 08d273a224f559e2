package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/admi-n/poc-excavator/src/internal"
)

const (
	// DeepSeekChatModel 普通对话模型
	DeepSeekChatModel = "deepseek-chat"
	// DeepSeekReasonerModel 推理模型
	DeepSeekReasonerModel = "deepseek-reasoner"
)

// DeepSeekClient 实现 DeepSeek API 调用
type DeepSeekClient struct {
	apiKey     string
	baseURL    string
	model      string
	reasoning  bool
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// DeepSeekConfig 配置结构
type DeepSeekConfig struct {
	APIKey    string
	BaseURL   string // 默认 "https://api.deepseek.com/v1"
	Model     string // 默认 deepseek-chat，推理模式默认 deepseek-reasoner
	Reasoning bool   // 推理模式：不发系统消息，不设 temperature/max_tokens
	Timeout   time.Duration
	Proxy     string // HTTP 代理
	Logger    logrus.FieldLogger
}

// NewDeepSeekClient 创建新的 DeepSeek 客户端
func NewDeepSeekClient(cfg DeepSeekConfig) (*DeepSeekClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = DeepSeekChatModel
		if cfg.Reasoning {
			cfg.Model = DeepSeekReasonerModel
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
		if cfg.Reasoning {
			cfg.Timeout = 300 * time.Second
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}

	httpClient, err := internal.CreateProxyHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP客户端失败: %w", err)
	}
	if cfg.Proxy != "" {
		cfg.Logger.Infof("使用代理: %s", cfg.Proxy)
	}

	return &DeepSeekClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		reasoning:  cfg.Reasoning,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// SendPrompt 发送 prompt 到 DeepSeek API 并返回响应
func (c *DeepSeekClient) SendPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{Model: c.model}
	if c.reasoning {
		reqBody.Messages = []Message{
			{Role: "user", Content: ReasoningInstructions + "\n\n" + userPrompt},
		}
	} else {
		reqBody.Messages = []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		}
		reqBody.Temperature = float64Ptr(0.1)
		reqBody.MaxTokens = 8000
	}

	apiResp, err := postChatCompletion(ctx, c.httpClient, c.baseURL, c.apiKey, "DeepSeek", reqBody)
	if err != nil {
		return "", err
	}

	c.logger.WithFields(logrus.Fields{
		"model":      c.model,
		"prompt":     apiResp.Usage.PromptTokens,
		"completion": apiResp.Usage.CompletionTokens,
		"total":      apiResp.Usage.TotalTokens,
	}).Info("📊 Token 使用")

	return apiResp.Choices[0].Message.Content, nil
}

// Analyze 根因分析（实现 AIClient 接口）
func (c *DeepSeekClient) Analyze(ctx context.Context, prompt string) (string, error) {
	return c.SendPrompt(ctx, ExploitAnalystPrompt, prompt)
}

// GetName 返回客户端名称
func (c *DeepSeekClient) GetName() string {
	return fmt.Sprintf("DeepSeek (%s)", c.model)
}

// Close 清理资源
func (c *DeepSeekClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
