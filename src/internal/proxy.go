package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClientOptions 外部 API 客户端共用的 HTTP 设置
type HTTPClientOptions struct {
	Proxy               string        // 例如 http://127.0.0.1:7897，空表示直连
	Timeout             time.Duration // 整个请求的超时
	TLSHandshakeTimeout time.Duration
	IdleConnTimeout     time.Duration
}

// ValidateProxyURL 验证代理URL格式，空字符串表示不使用代理
func ValidateProxyURL(proxyURL string) error {
	if strings.TrimSpace(proxyURL) == "" {
		return nil
	}

	u, err := url.Parse(strings.TrimSpace(proxyURL))
	if err != nil {
		return fmt.Errorf("invalid proxy URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
		return fmt.Errorf("unsupported proxy scheme: %s (supported: http, https, socks5)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy host cannot be empty")
	}
	return nil
}

// NewHTTPClient 按选项创建 HTTP 客户端，Tenderly、Etherscan 和各 AI 客户端共用
func NewHTTPClient(opts HTTPClientOptions) (*http.Client, error) {
	if err := ValidateProxyURL(opts.Proxy); err != nil {
		return nil, err
	}
	if opts.TLSHandshakeTimeout == 0 {
		opts.TLSHandshakeTimeout = 10 * time.Second
	}
	if opts.IdleConnTimeout == 0 {
		opts.IdleConnTimeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = opts.TLSHandshakeTimeout
	transport.IdleConnTimeout = opts.IdleConnTimeout

	if p := strings.TrimSpace(opts.Proxy); p != "" {
		proxyURL, _ := url.Parse(p)
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{Timeout: opts.Timeout, Transport: transport}, nil
}

// CreateProxyHTTPClient 便捷函数：创建带代理的HTTP客户端
func CreateProxyHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	return NewHTTPClient(HTTPClientOptions{Proxy: proxyURL, Timeout: timeout})
}
