package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind 错误类别
type Kind int

const (
	// KindFileAccess PoC 文件不可读或不是合法 UTF-8，跳过该文件
	KindFileAccess Kind = iota
	// KindExternalUnavailable 追踪/分析服务不可用，按缺失处理
	KindExternalUnavailable
	// KindMalformedPayload 外部返回的数据结构异常
	KindMalformedPayload
	KindConfig
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindFileAccess:
		return "FILE_ACCESS"
	case KindExternalUnavailable:
		return "EXTERNAL_UNAVAILABLE"
	case KindMalformedPayload:
		return "MALFORMED_PAYLOAD"
	case KindConfig:
		return "CONFIG"
	case KindStorage:
		return "STORAGE"
	default:
		return "UNKNOWN"
	}
}

// Stage 单个项目处理流程中的阶段
type Stage string

const (
	StageRead     Stage = "read"
	StageTrace    Stage = "trace"
	StageAnalysis Stage = "analysis"
	StageReport   Stage = "report"
	StageStore    Stage = "store"
)

// PipelineError 流水线错误
type PipelineError struct {
	Kind    Kind
	Stage   Stage
	Subject string // 文件路径、交易哈希或合约地址
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error 实现 error 接口
func (e *PipelineError) Error() string {
	prefix := fmt.Sprintf("[%s/%s]", e.Kind, e.Stage)
	if e.Subject != "" {
		prefix += " " + e.Subject
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext 添加上下文信息
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New 创建新的错误
func New(kind Kind, stage Stage, subject, message string) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Subject: subject, Message: message}
}

// Wrap 包装现有错误
func Wrap(err error, kind Kind, stage Stage, subject, message string) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Subject: subject, Message: message, Cause: err}
}

// FileAccess 读取 PoC 文件失败
func FileAccess(path string, cause error) *PipelineError {
	return Wrap(cause, KindFileAccess, StageRead, path, "读取文件失败")
}

// Unavailable 外部服务没有给出结果
func Unavailable(stage Stage, subject string, cause error) *PipelineError {
	return Wrap(cause, KindExternalUnavailable, stage, subject, "外部服务不可用")
}

// KindOf 返回错误链中第一个 PipelineError 的类别
func KindOf(err error) (Kind, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsKind 判断错误链中是否包含指定类别的 PipelineError
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsFileAccess 是否为文件访问错误
func IsFileAccess(err error) bool {
	return IsKind(err, KindFileAccess)
}

// IsUnavailable 是否为外部服务不可用
func IsUnavailable(err error) bool {
	return IsKind(err, KindExternalUnavailable)
}
