package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
)

// Provider 交易追踪数据来源
//
// 返回 (nil, nil) 或错误都表示没有可用数据，调用方不会重试。
type Provider interface {
	FetchTrace(ctx context.Context, txHash string, network internal.Network) (Evidence, error)
	Name() string
}

// DecodeEvidence 解析 JSON 对象，数字保留为 json.Number
func DecodeEvidence(r io.Reader) (Evidence, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("解析追踪数据失败: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("追踪数据顶层不是 JSON 对象: %T", raw)
	}
	return Evidence(obj), nil
}

// DecodeEvidenceBytes 同 DecodeEvidence
func DecodeEvidenceBytes(data []byte) (Evidence, error) {
	return DecodeEvidence(bytes.NewReader(data))
}

// ChainProvider 依次尝试多个来源，第一个返回非空数据的来源胜出
type ChainProvider struct {
	providers []Provider
	logger    logrus.FieldLogger
}

func NewChainProvider(logger logrus.FieldLogger, providers ...Provider) *ChainProvider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ChainProvider{providers: providers, logger: logger}
}

func (c *ChainProvider) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, " -> ")
}

func (c *ChainProvider) FetchTrace(ctx context.Context, txHash string, network internal.Network) (Evidence, error) {
	var lastErr error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := p.FetchTrace(ctx, txHash, network)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{"provider": p.Name(), "tx": txHash}).Debug("追踪来源不可用")
			lastErr = err
			continue
		}
		if len(ev) > 0 {
			return ev, nil
		}
	}
	if lastErr != nil {
		return nil, pipeerr.Unavailable(pipeerr.StageTrace, txHash, lastErr)
	}
	return nil, nil
}
