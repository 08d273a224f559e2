package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
	Output string `mapstructure:"output" yaml:"output"` // stdout, stderr 或文件路径
}

// DefaultLogConfig 默认日志配置
var DefaultLogConfig = LogConfig{
	Level:  "info",
	Format: "text",
	Output: "stdout",
}

// New 根据配置创建 logrus 日志器
func New(cfg LogConfig) (*logrus.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = DefaultLogConfig.Level
	}
	if cfg.Format == "" {
		cfg.Format = DefaultLogConfig.Format
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 '%s': %w", cfg.Level, err)
	}

	writer, err := writerFor(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("创建日志输出失败: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(writer)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	default:
		return nil, fmt.Errorf("不支持的日志格式: %s", cfg.Format)
	}

	return logger, nil
}

// Discard 返回丢弃所有输出的日志器，测试中使用
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writerFor(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
