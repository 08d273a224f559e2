package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// 共享的 API 类型定义

// ExploitAnalystPrompt 根因分析使用的系统提示
const ExploitAnalystPrompt = `You are an elite blockchain security researcher specializing in DeFi exploit forensics.
You reconstruct attacks from proof-of-concept code, transaction traces and contract sources.
Be precise: cite functions, state variables and amounts from the evidence, and say so when the evidence is insufficient.`

// ReasoningInstructions 推理模型没有系统消息，这段说明直接拼在用户消息前
const ReasoningInstructions = ExploitAnalystPrompt + `

Think step by step before answering: first map every external call in the trace to the PoC,
then locate the state change that made the attack profitable, then name the flawed check.
Only after that write the final analysis in the requested structure.`

// Message 消息结构
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Choice 选择结构
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage 使用情况结构
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError API 错误结构
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// chatRequest OpenAI 兼容的 /chat/completions 请求
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`
}

// postChatCompletion DeepSeek 和 OpenAI 共用的请求流程
func postChatCompletion(ctx context.Context, httpClient *http.Client, baseURL, apiKey, vendor string, reqBody chatRequest) (*chatResponse, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s API returned status %d: %s", vendor, resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("%s API error: %s (type: %s, code: %v)",
			vendor, apiResp.Error.Message, apiResp.Error.Type, apiResp.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s API returned status %d: %s", vendor, resp.StatusCode, string(body))
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	return &apiResp, nil
}

func float64Ptr(v float64) *float64 { return &v }

// quietLogger 未注入 logger 时使用，丢弃所有输出
func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
