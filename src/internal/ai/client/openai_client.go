package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/admi-n/poc-excavator/src/internal"
)

// OpenAIClient OpenAI Chat Completions 客户端
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// OpenAIConfig 配置结构
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // 默认 "https://api.openai.com/v1"
	Model   string // 默认 "gpt-4-turbo"
	Timeout time.Duration
	Proxy   string
	Logger  logrus.FieldLogger
}

// NewOpenAIClient 创建 OpenAI 客户端
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4-turbo"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}

	httpClient, err := internal.CreateProxyHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP客户端失败: %w", err)
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// SendPrompt 发送 prompt 并返回第一条回复
func (c *OpenAIClient) SendPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	apiResp, err := postChatCompletion(ctx, c.httpClient, c.baseURL, c.apiKey, "OpenAI", chatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: float64Ptr(0.1),
		MaxTokens:   4096,
	})
	if err != nil {
		return "", err
	}

	c.logger.Infof("📊 Token 使用: Prompt=%d, Completion=%d, Total=%d",
		apiResp.Usage.PromptTokens, apiResp.Usage.CompletionTokens, apiResp.Usage.TotalTokens)

	return apiResp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Analyze(ctx context.Context, prompt string) (string, error) {
	return c.SendPrompt(ctx, ExploitAnalystPrompt, prompt)
}

func (c *OpenAIClient) GetName() string {
	return fmt.Sprintf("OpenAI (%s)", c.model)
}

func (c *OpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
