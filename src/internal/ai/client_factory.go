package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/admi-n/poc-excavator/src/internal/ai/client"
)

// AIClient 定义所有 AI 客户端必须实现的接口
type AIClient interface {
	Analyze(ctx context.Context, prompt string) (string, error)
	GetName() string
	Close() error
}

// 支持的 provider
const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
	ProviderLocalLLM = "local-llm"
	ProviderGemini   = "gemini"
)

// providerAliases 别名到标准名称
var providerAliases = map[string]string{
	"deepseek":  ProviderDeepSeek,
	"openai":    ProviderOpenAI,
	"gpt4":      ProviderOpenAI,
	"chatgpt":   ProviderOpenAI,
	"local-llm": ProviderLocalLLM,
	"ollama":    ProviderLocalLLM,
	"gemini":    ProviderGemini,
}

// AIClientConfig 客户端配置
type AIClientConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	Reasoning bool // 仅 deepseek 支持
	Timeout   time.Duration
	Proxy     string
	Logger    logrus.FieldLogger
}

// NormalizeProvider 返回标准 provider 名称
func NormalizeProvider(provider string) (string, error) {
	name, ok := providerAliases[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return "", fmt.Errorf("invalid provider '%s', must be one of: deepseek, openai, gpt4, local-llm, ollama, gemini", provider)
	}
	return name, nil
}

// ValidateProvider 验证提供商名称是否有效
func ValidateProvider(provider string) error {
	_, err := NormalizeProvider(provider)
	return err
}

// NewAIClient 根据 provider 创建对应的 AI 客户端
func NewAIClient(ctx context.Context, cfg AIClientConfig) (AIClient, error) {
	provider, err := NormalizeProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case ProviderDeepSeek:
		return client.NewDeepSeekClient(client.DeepSeekConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Reasoning: cfg.Reasoning,
			Timeout:   cfg.Timeout,
			Proxy:     cfg.Proxy,
			Logger:    cfg.Logger,
		})

	case ProviderOpenAI:
		return client.NewOpenAIClient(client.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Proxy:   cfg.Proxy,
			Logger:  cfg.Logger,
		})

	case ProviderLocalLLM:
		return client.NewLocalLLMClient(client.LocalLLMConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Proxy:   cfg.Proxy,
			Logger:  cfg.Logger,
		})

	default:
		return client.NewGeminiClient(ctx, client.GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Proxy:   cfg.Proxy,
			Logger:  cfg.Logger,
		})
	}
}
