package client

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/admi-n/poc-excavator/src/internal"
)

// GeminiClient 通过 genai SDK 调用 Gemini
type GeminiClient struct {
	client *genai.Client
	model  string
	logger logrus.FieldLogger
}

// GeminiConfig 配置结构
type GeminiConfig struct {
	APIKey  string
	Model   string // 默认 "gemini-2.5-pro"
	Timeout time.Duration
	Proxy   string
	Logger  logrus.FieldLogger
}

// NewGeminiClient 创建 Gemini 客户端
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-pro"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}

	httpClient, err := internal.CreateProxyHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP客户端失败: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model, logger: cfg.Logger}, nil
}

// Analyze 根因分析（实现 AIClient 接口）
func (c *GeminiClient) Analyze(ctx context.Context, prompt string) (string, error) {
	temperature := float32(0.1)
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(ExploitAnalystPrompt, genai.RoleUser),
		Temperature:       &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	if resp.UsageMetadata != nil {
		c.logger.Infof("📊 Token 使用: Prompt=%d, Completion=%d, Total=%d",
			resp.UsageMetadata.PromptTokenCount,
			resp.UsageMetadata.CandidatesTokenCount,
			resp.UsageMetadata.TotalTokenCount)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no text in Gemini response")
	}
	return text, nil
}

func (c *GeminiClient) GetName() string {
	return fmt.Sprintf("Gemini (%s)", c.model)
}

// Close genai 客户端没有需要释放的连接
func (c *GeminiClient) Close() error {
	return nil
}
